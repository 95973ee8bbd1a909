package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "schedbot/internal/runtime/supervisor"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
	"schedbot/pkg/tgui"
)

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.setRunning(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.setRunning(sup, false)
			close(r.jobs)
		})
	}

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setRunning(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) setRunning(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue reports false when the queue is full or already closed.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// Route classifies one update and queues its handler.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		route, ok := r.textRoute(msg)
		if !ok {
			return
		}
		req := r.newRequest(up, chat, msg.FromID, msg.FromName, "text")
		req.Text = text
		r.enqueue(ctx, req, route.Handle, 0, func() {
			_, _ = r.adapter.SendText(ctx, chat, "Busy, please try again.", nil)
		})
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	cmd, ok := r.lookup(normalizeName(word))
	if !ok {
		if msg.IsPrivate {
			_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}

	req := r.newRequest(up, chat, msg.FromID, msg.FromName, cmd.Name)
	if cmd.Access == AccessOwnerOnly && !req.IsOwner {
		_, _ = r.adapter.SendText(ctx, chat, "This command is restricted to bot owners.", nil)
		return
	}
	req.Text = text
	req.RawArgs = parts[1:]
	req.Args, req.Flags, req.BoolFlags = parseFlags(req.RawArgs)

	r.enqueue(ctx, req, cmd.Handle, cmd.Timeout, func() {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, please try again.", nil)
	})
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	route, ok := r.callback(ns, action)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "This button has expired.")
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, cb.FromName, "cb:"+ns+":"+action)
	if route.Access == AccessOwnerOnly && !req.IsOwner {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	req.CallbackID = cb.ID
	req.MessageID = cb.MessageID
	req.Payload = payload

	h := func(c context.Context, rq *Request) error { return route.Handle(c, rq, payload) }
	ok = r.enqueueThen(ctx, req, h, route.Timeout, func() {
		// Clears the client's loading indicator if the handler did not answer.
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	})
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, fromName, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:   up,
		Chat:     chat,
		FromID:   fromID,
		FromName: fromName,
		Command:  command,
		ReqID:    rid,
		IsOwner:  r.isOwner(fromID),
		Adapter:  r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, onBusy func()) {
	if !r.enqueueThen(ctx, req, h, timeout, nil) && onBusy != nil {
		onBusy()
	}
}

func (r *Router) enqueueThen(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, after func()) bool {
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return r.tryEnqueue(func() {
		_ = final(ctx, req)
		if after != nil {
			after()
		}
	})
}

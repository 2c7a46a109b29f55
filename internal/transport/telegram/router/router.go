// Package router turns chat messages into command invocations: it resolves
// the command word, enforces owner-only access, and runs handlers on a
// bounded worker pool behind a middleware chain.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

const (
	textUnknown = "Unknown command. Try /help"
	textBusy    = "Busy, try again in a moment."
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Request is one routed command. Payload is the raw text after the command
// word; Args is the same text tokenized with quote support.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Payload string
	Args    []string
	ReqID   string
	IsOwner bool
	Logger  logx.Logger

	sender kit.Sender
}

// Reply sends plain text back to the request's chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML sends text with HTML parse mode.
func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

type Router struct {
	mu       sync.RWMutex
	commands []Command
	byName   map[string]int
	owners   []int64

	log    logx.Logger
	sender kit.Sender

	runMu sync.Mutex
	jobs  chan func()
}

func New(sender kit.Sender, log logx.Logger, owners []int64) *Router {
	return &Router{
		byName: map[string]int{},
		owners: slices.Clone(owners),
		log:    log.With(logx.String("comp", "telegram.router")),
		sender: sender,
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.owners, id)
}

// SetCommands replaces the command table. /help is always added.
func (r *Router) SetCommands(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Description: "show this help",
		Usage:       "/help [command]",
		Access:      AccessEveryone,
		Handle:      r.handleHelp,
	})
	list := make([]Command, 0, len(cmds))
	byName := map[string]int{}
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[name]; dup {
			r.log.Warn("duplicate command ignored", logx.String("cmd", name))
			continue
		}
		c.Name = name
		byName[name] = len(list)
		list = append(list, c)
	}
	for i, c := range list {
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a == "" {
				continue
			}
			if _, taken := byName[a]; !taken {
				byName[a] = i
			}
		}
	}
	r.mu.Lock()
	r.commands = list
	r.byName = byName
	r.mu.Unlock()
}

func (r *Router) lookup(word string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[strings.ToLower(word)]
	if !ok {
		return Command{}, false
	}
	return r.commands[i], true
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.commands)
}

// PublishMenu pushes the command list to the platform menu when the sender
// supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, buildMenu(r.Commands()))
}

// Dispatch routes up and runs its handler on the calling goroutine.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) error {
	job := r.route(up)
	if job == nil {
		return nil
	}
	return job(ctx)
}

// Run consumes updates until ctx is done or updates is closed. Handlers run
// on a pool of supervised workers; when the queue is full the user is told
// to retry.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	jobs := make(chan func(), 256)
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))

	r.runMu.Lock()
	r.jobs = jobs
	r.runMu.Unlock()

	for i := 0; i < workers; i++ {
		i := i
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(i, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		r.runMu.Lock()
		r.jobs = nil
		close(jobs)
		r.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.route(up)
			if job == nil {
				continue
			}
			if !r.enqueue(func() { _ = job(ctx) }) {
				_, _ = r.sender.SendText(ctx, chatOf(up.Message), textBusy, nil)
			}
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) enqueue(fn func()) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.jobs == nil {
		return false
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// route resolves up to a ready-to-run handler, or nil when the update is not
// a command or comes from a non-owner for an owner-only command.
func (r *Router) route(up kit.Update) func(ctx context.Context) error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	word, payload, ok := splitCommand(msg.Text)
	if !ok {
		return nil
	}
	chat := chatOf(msg)
	owner := r.isOwner(msg.FromID)

	cmd, found := r.lookup(word)
	if !found {
		if !owner {
			return nil
		}
		return func(ctx context.Context) error {
			_, err := r.sender.SendText(ctx, chat, textUnknown, nil)
			return err
		}
	}
	if cmd.Access == AccessOwnerOnly && !owner {
		r.log.Debug("non-owner command ignored", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
		return nil
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Payload: payload,
		Args:    tokenize(payload),
		ReqID:   rid,
		IsOwner: owner,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: r.sender,
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(cmd.Timeout))
	return func(ctx context.Context) error { return final(ctx, req) }
}

func chatOf(m *kit.Message) kit.ChatTarget {
	if m == nil {
		return kit.ChatTarget{}
	}
	return kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

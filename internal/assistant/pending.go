package assistant

import "context"

// Pending is an in-flight AskAsync request.
type Pending struct {
	g      *Gateway
	seq    uint64
	cancel context.CancelFunc
	done   chan struct{}

	reply string
	err   error
}

// AskAsync runs Ask on its own goroutine. Cancel the returned request to
// abort the HTTP call; its reply is then dropped.
func (g *Gateway) AskAsync(ctx context.Context, question, customSystemPrompt string) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		g:      g,
		seq:    g.seq.Add(1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		defer cancel()
		p.reply, p.err = g.ask(ctx, question, customSystemPrompt)
	}()
	return p
}

func (p *Pending) Cancel() { p.cancel() }

func (p *Pending) Done() <-chan struct{} { return p.done }

// Reply blocks until the request finishes. It returns ErrCanceled if the
// request was canceled before a reply arrived.
func (p *Pending) Reply() (string, error) {
	<-p.done
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

// Stale reports whether a newer request was issued after this one.
func (p *Pending) Stale() bool {
	return p.g.seq.Load() != p.seq
}

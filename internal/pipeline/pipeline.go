// Package pipeline runs an ordered list of request stages in front of the
// route handlers. Each stage returns an Outcome: continue to the next stage,
// respond and stop, or fail into the terminal error handler.
package pipeline

import (
	"github.com/labstack/echo/v4"
)

type outcomeKind int

const (
	kindContinue outcomeKind = iota
	kindRespond
	kindFail
)

// Outcome is the result of running a single stage.
type Outcome struct {
	kind   outcomeKind
	status int
	body   any
	err    error
}

// Continue passes control to the next stage.
func Continue() Outcome { return Outcome{kind: kindContinue} }

// Respond stops the pipeline and writes body as JSON with the given status.
// A nil body writes the status with no content.
func Respond(status int, body any) Outcome {
	return Outcome{kind: kindRespond, status: status, body: body}
}

// Fail stops the pipeline and hands err to the error handler.
func Fail(err error) Outcome { return Outcome{kind: kindFail, err: err} }

// Continued reports whether the outcome lets the request proceed.
func (o Outcome) Continued() bool { return o.kind == kindContinue }

// Responded reports whether the outcome short-circuits with a response.
func (o Outcome) Responded() bool { return o.kind == kindRespond }

// Err returns the failure error, or nil.
func (o Outcome) Err() error { return o.err }

// Status returns the response status of a Respond outcome.
func (o Outcome) Status() int { return o.status }

// Stage is one named step of the pipeline.
type Stage struct {
	Name string
	Run  func(c echo.Context) Outcome
}

// FailureHook observes stage failures, e.g. for metrics.
type FailureHook func(stage string, err error)

// Pipeline is an immutable ordered list of stages.
type Pipeline struct {
	stages []Stage
	hooks  []FailureHook
}

// New creates a Pipeline that runs stages in the given order.
func New(stages ...Stage) *Pipeline {
	s := make([]Stage, len(stages))
	copy(s, stages)
	return &Pipeline{stages: s}
}

// OnFailure registers a hook called whenever a stage fails.
func (p *Pipeline) OnFailure(h FailureHook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes stages until one of them does not continue. It returns that
// outcome and the name of the stage that produced it; when every stage
// continues, the returned outcome is Continue and the name is empty.
func (p *Pipeline) Run(c echo.Context) (Outcome, string) {
	for _, s := range p.stages {
		o := s.Run(c)
		if o.kind != kindContinue {
			return o, s.Name
		}
	}
	return Continue(), ""
}

// Middleware returns an Echo middleware that runs the pipeline and then the
// matched route handler.
func (p *Pipeline) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			o, stage := p.Run(c)
			switch o.kind {
			case kindFail:
				for _, h := range p.hooks {
					h(stage, o.err)
				}
				return o.err
			case kindRespond:
				if c.Response().Committed {
					return nil
				}
				if o.body == nil {
					return c.NoContent(o.status)
				}
				return c.JSON(o.status, o.body)
			}
			return next(c)
		}
	}
}

// Adapt wraps an Echo middleware as a stage. The stage continues when the
// middleware calls next, fails when it returns an error, and otherwise
// treats the middleware as having written the response itself.
func Adapt(name string, mw echo.MiddlewareFunc) Stage {
	return Stage{
		Name: name,
		Run: func(c echo.Context) Outcome {
			proceeded := false
			h := mw(func(echo.Context) error {
				proceeded = true
				return nil
			})
			if err := h(c); err != nil {
				return Fail(err)
			}
			if proceeded {
				return Continue()
			}
			return Respond(c.Response().Status, nil)
		},
	}
}

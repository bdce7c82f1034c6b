package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"news-qa/internal/chain"
	"news-qa/internal/client"
	"news-qa/internal/ir"
	"news-qa/internal/request"
	"news-qa/internal/session"
	"news-qa/internal/softassert"
)

var ErrUnresolvedVariable = errors.New("unresolved variable")

// scenarioRun is the mutable state of one scenario execution.
type scenarioRun struct {
	res       ScenarioResult
	log       *zap.Logger
	collector *softassert.Collector
}

func (s *scenarioRun) enter(st State) {
	s.res.States = append(s.res.States, st)
	s.log.Debug("scenario state", zap.String("state", string(st)))
}

func (s *scenarioRun) fatal(err error) {
	if s.res.Outcome == Fatal {
		return
	}
	s.res.Outcome = Fatal
	s.res.Err = err
	s.log.Error("scenario aborted", zap.Error(err))
}

func (r *Runner) runScenario(ctx context.Context, suite *ir.TestSuite, sc ir.Scenario) ScenarioResult {
	startSc := time.Now()
	sess := session.New(r.cfg.BaseURL)
	run := &scenarioRun{
		res:       ScenarioResult{Name: sc.Name},
		log:       r.log.With(zap.String("scenario", sc.Name), zap.String("session", sess.ID)),
		collector: softassert.New(sc.Name),
	}
	run.enter(StateInit)

	if err := r.gateway.Login(ctx, sess, r.cfg.Email, r.cfg.Password); err != nil {
		run.fatal(fmt.Errorf("login: %w", err))
		run.enter(StateDone)
		run.res.DurationMs = float64(time.Since(startSc).Milliseconds())
		return run.res
	}
	run.enter(StateAuthenticated)

	ch := chain.New(sess, r.builder, r.client, r.creators,
		chain.WithLogger(r.log.With(zap.String("scenario", sc.Name))),
		chain.WithTeardownStatus(r.teardownStatus(suite, sc)...))

	func() {
		defer func() {
			if p := recover(); p != nil {
				run.fatal(fmt.Errorf("panic: %v", p))
			}
			run.enter(StateTearingDown)
			run.res.Teardown = ch.TeardownAll(context.WithoutCancel(ctx))
			run.res.TeardownRan = true
		}()

		run.enter(StateExecuting)
		if err := r.execute(ctx, run, ch, sc); err != nil {
			run.fatal(err)
			return
		}
		run.enter(StateVerifying)
		r.verify(ctx, run)
	}()
	run.enter(StateDone)

	run.res.Failures = run.collector.Failures()
	if run.res.Outcome != Fatal {
		if err := run.collector.Finish(); err != nil {
			run.res.Outcome = Failed
			run.res.Err = err
		} else {
			run.res.Outcome = Passed
		}
	}
	run.res.DurationMs = float64(time.Since(startSc).Milliseconds())
	run.log.Info("scenario finished",
		zap.String("outcome", string(run.res.Outcome)),
		zap.Int("failures", len(run.res.Failures)),
		zap.Float64("duration_ms", run.res.DurationMs))
	return run.res
}

// execute creates prerequisites and dispatches every step. Responses are kept
// on the step results for verification.
func (r *Runner) execute(ctx context.Context, run *scenarioRun, ch *chain.Chain, sc ir.Scenario) error {
	for _, name := range sc.Requires {
		t, err := session.ParseResourceType(name)
		if err != nil {
			return err
		}
		if _, err := ch.Ensure(ctx, t); err != nil {
			return fmt.Errorf("prerequisite: %w", err)
		}
	}

	vars := clone(r.cfg.Vars())
	if vars == nil {
		vars = map[string]string{}
	}
	vars["uuid"] = uuid.NewString()
	vars["now"] = time.Now().UTC().Format(time.RFC3339)

	for _, st := range sc.Steps {
		stepVars := clone(vars)
		for k, v := range ch.Session().Vars() {
			stepVars[k] = v
		}

		d, err := describe(st, stepVars)
		if err != nil {
			return fmt.Errorf("step %q: %w", st.Label(), err)
		}

		stepRes := StepResult{Name: st.Label(), Op: st.Op, vars: stepVars, exp: st.Expect}
		resp, err := ch.DispatchWithin(ctx, d, time.Duration(st.TimeoutMs)*time.Millisecond)
		if err != nil {
			run.res.Steps = append(run.res.Steps, stepRes)
			return fmt.Errorf("step %q: %w", st.Label(), err)
		}
		stepRes.resp = resp
		stepRes.Method = resp.Method
		stepRes.URL = resp.URL
		stepRes.StatusCode = resp.StatusCode
		stepRes.RespBody = limitBody(resp.Body, 64<<10) // 64KB cap
		stepRes.DurationMs = float64(resp.Duration.Milliseconds())
		run.log.Debug("step dispatched",
			zap.String("step", stepRes.Name),
			zap.String("method", resp.Method),
			zap.String("url", resp.URL),
			zap.Int("status", resp.StatusCode))

		if st.Capture != nil {
			capture(run.collector, ch, st, resp)
		}
		if st.Release != "" && resp.Success() {
			t, _ := session.ParseResourceType(st.Release)
			ch.Release(t)
		}
		run.res.Steps = append(run.res.Steps, stepRes)
	}
	return nil
}

func capture(c *softassert.Collector, ch *chain.Chain, st ir.Step, resp *client.Response) {
	t, err := session.ParseResourceType(st.Capture.Type)
	if err != nil {
		c.Failf("known resource type", st.Capture.Type, "step %q: capture", st.Label())
		return
	}
	from := st.Capture.From
	if from == "" {
		from = "id"
	}
	id, ok := resp.String(from)
	if !resp.Success() || !ok || id == "" {
		c.Failf(fmt.Sprintf("created %s id at %s", t, from), fmt.Sprintf("%d %s", resp.StatusCode, resp.Snippet(256)),
			"step %q: capture %s", st.Label(), t)
		return
	}
	ch.Record(t, id)
}

// verify evaluates every expectation against the recorded responses.
func (r *Runner) verify(ctx context.Context, run *scenarioRun) {
	for i := range run.res.Steps {
		step := &run.res.Steps[i]
		before := len(run.collector.Failures())
		for _, exp := range step.exp {
			r.evalExpectation(ctx, run.collector, step, exp)
		}
		step.Passed = len(run.collector.Failures()) == before
	}
}

// describe turns a declarative step into a request descriptor, resolving
// ${...} variables.
func describe(st ir.Step, vars map[string]string) (request.Descriptor, error) {
	d := request.Descriptor{
		Endpoint:   st.Op,
		PathParams: interpolateMap(st.PathParams, vars),
		Query:      interpolateMap(st.Query, vars),
		Headers:    interpolateMap(st.Headers, vars),
		Auth:       request.AuthMode(st.Auth),
		Token:      interpolate(st.Token, vars),
	}
	var unresolved []string
	for _, v := range d.PathParams {
		unresolved = append(unresolved, findUnresolved(v)...)
	}
	if len(unresolved) > 0 {
		return d, fmt.Errorf("%w in path: %s (define via --env or use ${VAR|default})",
			ErrUnresolvedVariable, strings.Join(unresolved, ", "))
	}

	switch {
	case len(st.Multipart) > 0:
		d.Body = request.BodyMultipart
		for _, p := range st.Multipart {
			f := request.Field{Name: p.Name}
			switch {
			case p.File != "":
				f.File = &request.File{Path: interpolate(p.File, vars), MimeType: p.MimeType}
			case p.Values != nil:
				f.Values = make([]string, len(p.Values))
				for i, v := range p.Values {
					f.Values[i] = interpolate(v, vars)
				}
			default:
				f.Value = interpolate(p.Value, vars)
			}
			d.Multipart = append(d.Multipart, f)
		}
	case st.JSON != nil:
		d.Body = request.BodyJSON
		d.JSON = walkInterpolate(st.JSON, vars)
	}
	return d, nil
}

func limitBody(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "\n...[truncated]..."
}

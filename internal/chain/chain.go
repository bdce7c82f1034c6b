package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"news-qa/internal/client"
	"news-qa/internal/endpoint"
	"news-qa/internal/request"
	"news-qa/internal/session"
)

var (
	ErrNoCreator        = errors.New("no creator registered")
	ErrCycle            = errors.New("resource dependency cycle")
	ErrNoDeleteEndpoint = errors.New("no delete endpoint")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// DefaultTeardownStatus accepts both delete conventions seen on the API.
var DefaultTeardownStatus = []int{http.StatusOK, http.StatusNoContent}

// Creator performs the create call for one resource type and returns its id.
// It may call Ensure for the resources it depends on.
type Creator func(ctx context.Context, c *Chain) (string, error)

type TeardownRecord struct {
	Resource   session.CreatedResource
	StatusCode int
	Skipped    bool
	Err        error
}

// Chain creates prerequisite resources at most once per scenario and
// deletes everything it recorded in reverse order.
type Chain struct {
	sess     *session.Context
	builder  *request.Builder
	client   *client.Client
	log      *zap.Logger
	creators map[session.ResourceType]Creator

	deleteOps      map[session.ResourceType]string
	teardownStatus []int
	creating       map[session.ResourceType]bool
	tornDown       bool
}

type Option func(*Chain)

func WithLogger(l *zap.Logger) Option { return func(c *Chain) { c.log = l } }

func WithTeardownStatus(codes ...int) Option {
	return func(c *Chain) {
		if len(codes) > 0 {
			c.teardownStatus = append([]int(nil), codes...)
		}
	}
}

func WithDeleteEndpoint(t session.ResourceType, op string) Option {
	return func(c *Chain) { c.deleteOps[t] = op }
}

func New(sess *session.Context, b *request.Builder, cl *client.Client, creators map[session.ResourceType]Creator, opts ...Option) *Chain {
	c := &Chain{
		sess:     sess,
		builder:  b,
		client:   cl,
		log:      zap.NewNop(),
		creators: creators,
		deleteOps: map[session.ResourceType]string{
			session.Post:    endpoint.DeletePost,
			session.Comment: endpoint.DeleteComment,
		},
		teardownStatus: DefaultTeardownStatus,
		creating:       map[session.ResourceType]bool{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Chain) Session() *session.Context { return c.sess }

// Dispatch builds and sends a request on behalf of the chain's session.
func (c *Chain) Dispatch(ctx context.Context, d request.Descriptor) (*client.Response, error) {
	return c.DispatchWithin(ctx, d, 0)
}

// DispatchWithin is Dispatch with a per-request timeout; zero uses the
// client default.
func (c *Chain) DispatchWithin(ctx context.Context, d request.Descriptor, timeout time.Duration) (*client.Response, error) {
	req, err := c.builder.Build(ctx, d, c.sess)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req, timeout)
}

// Ensure returns the id of the live resource of type t, creating it first if
// the scenario has none.
func (c *Chain) Ensure(ctx context.Context, t session.ResourceType) (string, error) {
	if id, ok := c.sess.Lookup(t); ok {
		return id, nil
	}
	create, ok := c.creators[t]
	if !ok {
		return "", fmt.Errorf("%w for %s", ErrNoCreator, t)
	}
	if c.creating[t] {
		return "", fmt.Errorf("%w at %s", ErrCycle, t)
	}
	c.creating[t] = true
	defer delete(c.creating, t)

	id, err := create(ctx, c)
	if err != nil {
		return "", fmt.Errorf("ensure %s: %w", t, err)
	}
	if id == "" {
		return "", fmt.Errorf("ensure %s: creator returned an empty id", t)
	}
	c.Record(t, id)
	return id, nil
}

func (c *Chain) Record(t session.ResourceType, id string) {
	r := c.sess.Record(t, id)
	c.log.Debug("resource recorded",
		zap.String("session", r.OwnerSessionID),
		zap.String("type", string(t)),
		zap.String("id", id))
}

// Release marks the latest resource of type t as deleted by the scenario.
func (c *Chain) Release(t session.ResourceType) bool {
	_, ok := c.sess.Release(t)
	return ok
}

// TeardownAll deletes recorded resources newest first. Failures are logged
// and reported in the records but never stop the remaining deletes. A second
// call is a no-op.
func (c *Chain) TeardownAll(ctx context.Context) []TeardownRecord {
	if c.tornDown {
		return nil
	}
	c.tornDown = true

	created := c.sess.Created()
	records := make([]TeardownRecord, 0, len(created))
	for i := len(created) - 1; i >= 0; i-- {
		rec := c.teardownOne(ctx, created[i])
		if rec.Err != nil {
			c.log.Warn("teardown failed",
				zap.String("session", rec.Resource.OwnerSessionID),
				zap.String("type", string(rec.Resource.Type)),
				zap.String("id", rec.Resource.ID),
				zap.Int("status", rec.StatusCode),
				zap.Error(rec.Err))
		}
		records = append(records, rec)
	}
	return records
}

func (c *Chain) teardownOne(ctx context.Context, r session.CreatedResource) TeardownRecord {
	rec := TeardownRecord{Resource: r}
	if r.Released {
		rec.Skipped = true
		return rec
	}
	op, ok := c.deleteOps[r.Type]
	if !ok {
		rec.Err = fmt.Errorf("%w for %s", ErrNoDeleteEndpoint, r.Type)
		return rec
	}
	resp, err := c.Dispatch(ctx, request.Descriptor{
		Endpoint:   op,
		PathParams: map[string]string{"id": r.ID},
	})
	if err != nil {
		rec.Err = err
		return rec
	}
	rec.StatusCode = resp.StatusCode
	if !slices.Contains(c.teardownStatus, resp.StatusCode) {
		rec.Err = fmt.Errorf("%w %d deleting %s %s: %s", ErrUnexpectedStatus, resp.StatusCode, r.Type, r.ID, resp.Snippet(256))
	}
	return rec
}

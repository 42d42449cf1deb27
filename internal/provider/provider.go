// Package provider declares the external data providers the engine gathers
// from each cycle, and the registry that fans fetches out in parallel.
// Concrete clients (trading, health ring, email, calendar, news) live
// outside the engine; only the Fetcher contract matters here.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Declaration is the static description of a provider, fixed at startup.
type Declaration struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Weight   int      `json:"weight"` // 0-100, relative share of coverage
	Required bool     `json:"required"`
	Fields   []string `json:"fields"` // field names the provider is expected to populate
}

// Fetcher is implemented by concrete provider clients. Fetch must honor the
// context deadline and return the provider's payload as a flat-ish document.
type Fetcher interface {
	Fetch(ctx context.Context) (map[string]any, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (map[string]any, error)

func (f FetcherFunc) Fetch(ctx context.Context) (map[string]any, error) { return f(ctx) }

// Result is one provider's outcome for a cycle.
type Result struct {
	ProviderID    string          `json:"provider_id"`
	Connected     bool            `json:"connected"`
	FieldPresence map[string]bool `json:"field_presence,omitempty"`
	Payload       map[string]any  `json:"payload,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Error         string          `json:"error,omitempty"`
}

// FieldCoverage returns the percentage of declared fields present, 0-100.
func (r Result) FieldCoverage() float64 {
	if len(r.FieldPresence) == 0 {
		if r.Connected {
			return 100
		}
		return 0
	}
	present := 0
	for _, ok := range r.FieldPresence {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(r.FieldPresence)) * 100
}

// Context is the gathered snapshot one cycle works from.
type Context struct {
	GatheredAt time.Time         `json:"gathered_at"`
	Results    map[string]Result `json:"results"`
}

// Result returns the result for a provider id, with Connected=false when the
// provider never reported.
func (c *Context) Result(id string) Result {
	if c == nil {
		return Result{ProviderID: id}
	}
	if r, ok := c.Results[id]; ok {
		return r
	}
	return Result{ProviderID: id}
}

// Value resolves a dotted data-source path ("portfolio", "net_worth",
// "health.sleep.score", "calendar.weekly_hours", or "<provider>.<field>...")
// against the gathered payloads. Unknown sources return ok=false.
func (c *Context) Value(source string) (float64, bool) {
	if c == nil || source == "" {
		return 0, false
	}

	parts := strings.Split(source, ".")

	// Bare names resolve against the financial provider first, then any
	// provider carrying the field.
	if len(parts) == 1 {
		if v, ok := lookupNumber(c.Result("financial").Payload, parts); ok {
			return v, true
		}
		for _, id := range c.sortedIDs() {
			if v, ok := lookupNumber(c.Results[id].Payload, parts); ok {
				return v, true
			}
		}
		return 0, false
	}

	r := c.Result(parts[0])
	if !r.Connected {
		return 0, false
	}
	return lookupNumber(r.Payload, parts[1:])
}

func (c *Context) sortedIDs() []string {
	ids := make([]string, 0, len(c.Results))
	for id := range c.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func lookupNumber(payload map[string]any, path []string) (float64, bool) {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return 0, false
		}
		cur, ok = m[key]
		if !ok {
			return 0, false
		}
	}
	switch v := cur.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Registry holds provider declarations and their fetchers. It is immutable
// after startup; no locking is required by readers.
type Registry struct {
	decls    []Declaration
	fetchers map[string]Fetcher
	sealed   bool
	mu       sync.Mutex
}

// NewRegistry creates a registry with the given declarations.
func NewRegistry(decls []Declaration) *Registry {
	return &Registry{
		decls:    decls,
		fetchers: make(map[string]Fetcher),
	}
}

// Register binds a fetcher to a declared provider id. Must be called before
// Seal; registrations after sealing are ignored.
func (reg *Registry) Register(id string, f Fetcher) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.sealed {
		return
	}
	reg.fetchers[id] = f
}

// Seal freezes the registry. Called once startup wiring is done.
func (reg *Registry) Seal() {
	reg.mu.Lock()
	reg.sealed = true
	reg.mu.Unlock()
}

// Declarations returns the static provider set.
func (reg *Registry) Declarations() []Declaration {
	return reg.decls
}

// GatherAll asks every provider for its result in parallel, each fetch under
// its own deadline. Partial failures are tolerated; a provider without a
// fetcher, or whose fetch errors or times out, yields Connected=false. The
// returned context always has an entry per declared provider.
func (reg *Registry) GatherAll(ctx context.Context, perFetch time.Duration) *Context {
	out := &Context{
		GatheredAt: time.Now(),
		Results:    make(map[string]Result, len(reg.decls)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, decl := range reg.decls {
		g.Go(func() error {
			res := reg.fetchOne(gctx, decl, perFetch)
			mu.Lock()
			out.Results[decl.ID] = res
			mu.Unlock()
			return nil // fetch failures never fail the group
		})
	}

	g.Wait()
	return out
}

func (reg *Registry) fetchOne(ctx context.Context, decl Declaration, timeout time.Duration) Result {
	res := Result{ProviderID: decl.ID, FetchedAt: time.Now()}

	fetcher, ok := reg.fetchers[decl.ID]
	if !ok {
		res.Error = "no client registered"
		return res
	}

	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := fetcher.Fetch(fctx)
	res.FetchedAt = time.Now()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Connected = true
	res.Payload = payload
	res.FieldPresence = make(map[string]bool, len(decl.Fields))
	for _, field := range decl.Fields {
		v, present := payload[field]
		res.FieldPresence[field] = present && v != nil
	}
	return res
}

// DefaultDeclarations is the provider set the engine ships with. Weights sum
// to 100.
func DefaultDeclarations() []Declaration {
	return []Declaration{
		{ID: "identity", Name: "Identity & Profile", Category: "core", Weight: 15, Required: true, Fields: []string{"name", "timezone", "preferences"}},
		{ID: "goals", Name: "Goal List", Category: "core", Weight: 15, Required: true, Fields: []string{"active", "completed"}},
		{ID: "financial", Name: "Trading & Net Worth", Category: "financial", Weight: 20, Required: true, Fields: []string{"portfolio", "net_worth", "positions", "predictions"}},
		{ID: "health", Name: "Health Ring", Category: "health", Weight: 18, Required: true, Fields: []string{"score", "sleep", "activity", "history"}},
		{ID: "calendar", Name: "Calendar", Category: "career", Weight: 12, Required: false, Fields: []string{"events", "weekly_hours"}},
		{ID: "safety", Name: "Safety Alerts", Category: "safety", Weight: 10, Required: false, Fields: []string{"active_alerts"}},
		{ID: "email", Name: "Email", Category: "communication", Weight: 6, Required: false, Fields: []string{"unread", "important"}},
		{ID: "news", Name: "News", Category: "context", Weight: 4, Required: false, Fields: []string{"headlines"}},
	}
}

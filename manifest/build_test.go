package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcap/stepper/capability"
	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/runner"
)

var welcomeManifest = `
capabilities:
  lookupOrg:
    http: GET $ADDR/orgs/{{ path . }}
  lookupUser:
    sql:
      dsn: $DB
      query: SELECT id, name FROM users WHERE org_id = :orgId AND id = :userId
  sendPush:
    http:
      method: POST
      url: $ADDR/push
chains:
- tag: GetOrg
  steps:
  - effect: org
    capability: lookupOrg
    from: orgNick
- tag: SendWelcomePush
  steps:
  - effect: org
    capability: lookupOrg
    from: orgNick
  - effect: user
    capability: lookupUser
    input:
      orgId: "{{ .org.id }}"
      userId: "100"
  - pure: greeting
    template: Welcome {{ .user.name }} of {{ .org.name }}
  - effect: push
    capability: sendPush
    input:
      message: "{{ .greeting }}"
      user: "{{ .user.id }}"
- tag: doNothing
`

func TestBuildAndRun(t *testing.T) {
	bundle := buildWelcome(t)
	dispatcher, err := runner.NewDispatcher(
		runner.New(bundle.Registry, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		bundle.Chains...,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"GetOrg", "SendWelcomePush", "doNothing"}, dispatcher.Tags())

	ctx := context.Background()

	result, err := dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "SendWelcomePush", "orgNick": "foo"})
	require.NoError(t, err)
	assert.Equal(t,
		chain.Accumulator{
			"tag":      "SendWelcomePush",
			"orgNick":  "foo",
			"org":      map[string]any{"id": "foo", "name": "Foo"},
			"user":     map[string]any{"id": "100", "name": "Bar"},
			"greeting": "Welcome Bar of Foo",
			"push":     map[string]any{"sent": true, "message": "Welcome Bar of Foo", "user": "100"},
		},
		result,
	)

	result, err = dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "GetOrg", "orgNick": "foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "foo", "name": "Foo"}, result["org"])

	input := chain.Accumulator{"tag": "doNothing", "x": 1}
	result, err = dispatcher.RunByTag(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, input, result)

	// capability failures surface as they are
	_, err = dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "SendWelcomePush", "orgNick": "bar"})
	var httpErr *capability.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, chain.IsConfigError(err))

	_, err = dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "Unknown"})
	assert.ErrorIs(t, err, chain.ErrNoChainForTag)
}

func TestBuildExtraCapabilities(t *testing.T) {
	manifest := load(t, `
chains:
- tag: Echo
  steps:
  - effect: echoed
    capability: echo
    from: value
`)
	bundle, err := manifest.Build(map[string]capability.Capability{
		"echo": capability.Func(func(ctx context.Context, arg any) (any, error) { return arg, nil }),
	})
	require.NoError(t, err)
	defer bundle.Close()

	r := runner.New(bundle.Registry, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.Len(t, bundle.Chains, 1)
	result, err := r.Run(context.Background(), bundle.Chains[0], chain.Accumulator{"value": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, result["echoed"])
}

func TestBuildKeepsNumericValues(t *testing.T) {
	manifest := load(t, `
chains:
- tag: Lookup
  steps:
  - effect: org
    capability: lookupOrg
    from: orgNick
  - effect: user
    capability: lookupUser
    input:
      orgId: "{{ .org.id }}"
      label: org {{ .org.id }}
`)
	var userArg any
	bundle, err := manifest.Build(map[string]capability.Capability{
		// JSON decoded numbers are float64
		"lookupOrg": capability.Func(func(ctx context.Context, arg any) (any, error) {
			return map[string]any{"id": float64(1234567)}, nil
		}),
		"lookupUser": capability.Func(func(ctx context.Context, arg any) (any, error) {
			userArg = arg
			return "ok", nil
		}),
	})
	require.NoError(t, err)
	defer bundle.Close()

	r := runner.New(bundle.Registry, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err = r.Run(context.Background(), bundle.Chains[0], chain.Accumulator{"orgNick": "foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"orgId": float64(1234567), "label": "org 1234567"}, userArg)
}

var parallelManifest = `
capabilities:
  lookupProfile:
    parallel:
      steps:
      - effect: org
        capability: lookupOrg
        from: orgNick
      - effect: user
        capability: lookupUser
        input:
          orgId: "{{ .orgNick }}"
          userId: "{{ .userId }}"
      - pure: nick
        from: orgNick
chains:
- tag: Profile
  steps:
  - effect: profile
    capability: lookupProfile
- tag: Profiles
  steps:
  - effect: profiles
    capability: lookupProfile
    from: requests
`

func TestBuildParallel(t *testing.T) {
	manifest := load(t, parallelManifest)
	bundle, err := manifest.Build(map[string]capability.Capability{
		"lookupOrg": capability.Func(func(ctx context.Context, arg any) (any, error) {
			return map[string]any{"id": arg, "name": "Foo"}, nil
		}),
		"lookupUser": capability.Func(func(ctx context.Context, arg any) (any, error) {
			req := arg.(map[string]any)
			return map[string]any{"id": req["userId"], "org": req["orgId"]}, nil
		}),
	}, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer bundle.Close()

	dispatcher, err := runner.NewDispatcher(
		runner.New(bundle.Registry, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		bundle.Chains...,
	)
	require.NoError(t, err)
	ctx := context.Background()

	// every step of the group gets the same record
	result, err := dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "Profile", "orgNick": "foo", "userId": "100"})
	require.NoError(t, err)
	assert.Equal(t,
		map[string]any{
			"org":  map[string]any{"id": "foo", "name": "Foo"},
			"user": map[string]any{"id": "100", "org": "foo"},
			"nick": "foo",
		},
		result["profile"],
	)

	// step i gets record i
	result, err = dispatcher.RunByTag(ctx, chain.Accumulator{
		"tag": "Profiles",
		"requests": []any{
			map[string]any{"orgNick": "a"},
			map[string]any{"orgNick": "b", "userId": "200"},
			map[string]any{"orgNick": "c"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		map[string]any{
			"org":  map[string]any{"id": "a", "name": "Foo"},
			"user": map[string]any{"id": "200", "org": "b"},
			"nick": "c",
		},
		result["profiles"],
	)

	_, err = dispatcher.RunByTag(ctx, chain.Accumulator{
		"tag":      "Profiles",
		"requests": []any{map[string]any{"orgNick": "a"}},
	})
	assert.ErrorIs(t, err, chain.ErrInputMismatch)

	_, err = dispatcher.RunByTag(ctx, chain.Accumulator{"tag": "Profiles", "requests": "nope"})
	assert.ErrorContains(t, err, "record or a list of records")
}

func TestBuildParallelConcurrency(t *testing.T) {
	// gauge tracks how many invocations are in flight at once
	var mutex sync.Mutex
	current, peak := 0, 0
	enter := func() {
		mutex.Lock()
		defer mutex.Unlock()
		current++
		peak = max(peak, current)
	}
	leave := func() {
		mutex.Lock()
		defer mutex.Unlock()
		current--
	}
	slow := capability.Func(func(ctx context.Context, arg any) (any, error) {
		enter()
		defer leave()
		time.Sleep(20 * time.Millisecond)
		return arg, nil
	})

	tests := []struct {
		concurrency string
		opts        []runner.Option
		peak        int
	}{
		{"concurrency: 1", nil, 1},
		{"concurrency: 2", nil, 2},
		{"", []runner.Option{runner.WithConcurrency(1)}, 1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q %d", test.concurrency, len(test.opts)), func(t *testing.T) {
			current, peak = 0, 0
			manifest := load(t, fmt.Sprintf(`
capabilities:
  fanOut:
    parallel:
      %s
      steps:
      - effect: a
        capability: slow
      - effect: b
        capability: slow
      - effect: c
        capability: slow
      - effect: d
        capability: slow
chains:
- tag: FanOut
  steps:
  - effect: all
    capability: fanOut
`, test.concurrency))
			opts := append([]runner.Option{runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, test.opts...)
			bundle, err := manifest.Build(map[string]capability.Capability{"slow": slow}, opts...)
			require.NoError(t, err)
			defer bundle.Close()

			r := runner.New(bundle.Registry, runner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			result, err := r.Run(context.Background(), bundle.Chains[0], chain.Accumulator{"x": 1})
			require.NoError(t, err)
			assert.Len(t, result["all"], 4)
			assert.Equal(t, test.peak, peak)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	t.Run("undeclared capability", func(t *testing.T) {
		manifest := load(t, `
chains:
- tag: GetOrg
  steps:
  - effect: org
    capability: lookupOrg
`)
		_, err := manifest.Build(nil)
		assert.ErrorIs(t, err, chain.ErrCapabilityNotFound)
		var configErr *chain.ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Equal(t, "GetOrg", configErr.Tag)
		assert.Equal(t, "org", configErr.Key)
	})

	t.Run("duplicate tag", func(t *testing.T) {
		manifest := load(t, `
chains:
- tag: A
- tag: A
`)
		_, err := manifest.Build(nil)
		assert.ErrorIs(t, err, chain.ErrDuplicateTag)
	})

	t.Run("duplicate key", func(t *testing.T) {
		manifest := load(t, `
chains:
- tag: A
  steps:
  - pure: a
    template: x
  - pure: a
    template: y
`)
		_, err := manifest.Build(nil)
		assert.ErrorIs(t, err, chain.ErrDuplicateKey)
	})

	invalid := map[string]string{
		"empty capability": `
capabilities:
  nothing: {}
chains: []
`,
		"http and sql": `
capabilities:
  both:
    http: GET http://localhost/
    sql:
      dsn: ":memory:"
      query: SELECT 1
chains: []
`,
		"sql without dsn": `
capabilities:
  lookupUser:
    sql:
      query: SELECT 1
chains: []
`,
		"sql without query": `
capabilities:
  lookupUser:
    sql:
      dsn: ":memory:"
chains: []
`,
		"bad url template": `
capabilities:
  lookupOrg:
    http: GET http://localhost/{{ .id
chains: []
`,
		"parallel without steps": `
capabilities:
  group:
    parallel:
      steps: []
chains: []
`,
		"parallel using parallel": `
capabilities:
  inner:
    parallel:
      steps:
      - pure: a
        template: x
  outer:
    parallel:
      steps:
      - effect: b
        capability: inner
chains: []
`,
		"parallel with undeclared capability": `
capabilities:
  group:
    parallel:
      steps:
      - effect: b
        capability: nowhere
chains: []
`,
		"parallel with duplicate keys": `
capabilities:
  group:
    parallel:
      steps:
      - pure: a
        template: x
      - pure: a
        template: y
chains: []
`,
		"bad step": `
chains:
- tag: A
  steps:
  - pure: a
`,
	}
	for name, doc := range invalid {
		t.Run(name, func(t *testing.T) {
			manifest := load(t, doc)
			_, err := manifest.Build(nil)
			assert.Error(t, err)
		})
	}
}

//
// Auxiliary functions
//

// buildWelcome builds welcomeManifest against a test http server for orgs and
// pushes and a sqlite database for users
func buildWelcome(t *testing.T) *Bundle {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "foo" {
			http.Error(w, "org not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "foo", "name": "Foo"})
	})
	mux.HandleFunc("POST /push", func(w http.ResponseWriter, r *http.Request) {
		var push map[string]any
		if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		push["sent"] = true
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(push)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dsn := filepath.Join(t.TempDir(), "users.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	for _, statement := range []string{
		"CREATE TABLE users (id TEXT, org_id TEXT, name TEXT)",
		"INSERT INTO users VALUES ('100', 'foo', 'Bar')",
		"INSERT INTO users VALUES ('101', 'foo', 'Baz')",
	} {
		_, err := db.Exec(statement)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	doc := strings.NewReplacer("$ADDR", server.URL, "$DB", dsn).Replace(welcomeManifest)
	manifest := load(t, doc)
	bundle, err := manifest.Build(nil)
	require.NoError(t, err)
	t.Cleanup(func() { bundle.Close() })
	return bundle
}

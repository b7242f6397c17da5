package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/bcap/stepper/capability"
	"github.com/bcap/stepper/chain"
	"github.com/bcap/stepper/runner"
)

// Bundle is a compiled manifest. Close releases the database handles opened
// for SQL capabilities
type Bundle struct {
	Registry *capability.Registry
	Chains   []chain.Chain

	databases map[string]*sql.DB
}

func (b *Bundle) Close() error {
	var errs []error
	for _, db := range b.databases {
		errs = append(errs, db.Close())
	}
	b.databases = nil
	return errors.Join(errs...)
}

// Build compiles the manifest into a capability registry and validated chains.
//
// Besides per chain validation (chain.New) Build checks that tags are unique
// and that every effect step refers to a capability declared in the manifest
// or in extra, so wiring mistakes surface before anything runs. Capabilities in
// extra are registered as they are and win over manifest ones with the same key.
//
// opts configure the runners behind parallel capabilities.
func (m *Manifest) Build(extra map[string]capability.Capability, opts ...runner.Option) (*Bundle, error) {
	bundle := &Bundle{
		Registry:  capability.NewRegistry(),
		databases: map[string]*sql.DB{},
	}
	groups, err := m.buildCapabilities(bundle, opts)
	if err != nil {
		bundle.Close()
		return nil, err
	}
	for key, c := range extra {
		bundle.Registry.Register(key, c)
		delete(groups, key)
	}

	known := map[string]bool{}
	for _, key := range bundle.Registry.Keys() {
		known[key] = true
	}
	for _, key := range sortedKeys(groups) {
		if err := checkEffects(groups[key], known, groups); err != nil {
			bundle.Close()
			return nil, fmt.Errorf("capability %q: %w", key, err)
		}
	}

	tags := map[string]bool{}
	for _, def := range m.Chains {
		if tags[def.Tag] {
			bundle.Close()
			return nil, &chain.ConfigError{Err: chain.ErrDuplicateTag, Tag: def.Tag}
		}
		tags[def.Tag] = true

		c, err := def.Compile()
		if err != nil {
			bundle.Close()
			return nil, err
		}
		if err := checkEffects(c.Steps, known, nil); err != nil {
			bundle.Close()
			var ce *chain.ConfigError
			if errors.As(err, &ce) {
				ce.Tag = c.Tag
			}
			return nil, err
		}
		bundle.Chains = append(bundle.Chains, c)
	}
	return bundle, nil
}

// checkEffects fails on effect steps whose capability is not known or is one of
// the parallel groups in nested, which would let groups call each other
func checkEffects(steps []chain.Step, known map[string]bool, nested map[string][]chain.Step) error {
	for _, step := range steps {
		effect, ok := step.(*chain.Effect)
		if !ok {
			continue
		}
		if !known[effect.Capability] {
			return &chain.ConfigError{
				Err:    chain.ErrCapabilityNotFound,
				Key:    effect.Key,
				Detail: fmt.Sprintf("%q is not declared", effect.Capability),
			}
		}
		if _, ok := nested[effect.Capability]; ok {
			return &chain.ConfigError{
				Err:    chain.ErrInvalidStep,
				Key:    effect.Key,
				Detail: fmt.Sprintf("parallel capabilities cannot use parallel capability %q", effect.Capability),
			}
		}
	}
	return nil
}

// buildCapabilities registers the declared capabilities and returns the steps
// of the parallel ones, by capability key
func (m *Manifest) buildCapabilities(bundle *Bundle, opts []runner.Option) (map[string][]chain.Step, error) {
	groups := map[string][]chain.Step{}
	for _, key := range sortedKeys(m.Capabilities) {
		def := m.Capabilities[key]
		set := 0
		for _, isSet := range []bool{def.HTTP != nil, def.SQL != nil, def.Parallel != nil} {
			if isSet {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("capability %q: exactly one of http, sql and parallel must be set", key)
		}

		switch {
		case def.HTTP != nil:
			h := *def.HTTP
			if err := h.Compile(); err != nil {
				return nil, fmt.Errorf("capability %q: %w", key, err)
			}
			bundle.Registry.Register(key, &h)
		case def.SQL != nil:
			if def.SQL.Query == "" {
				return nil, fmt.Errorf("capability %q: sql capability has no query", key)
			}
			db, err := bundle.open(def.SQL.DSN)
			if err != nil {
				return nil, fmt.Errorf("capability %q: %w", key, err)
			}
			bundle.Registry.Register(key, capability.NewSQL(db, def.SQL.Query))
		case def.Parallel != nil:
			steps, err := def.Parallel.compile()
			if err != nil {
				return nil, fmt.Errorf("capability %q: %w", key, err)
			}
			runnerOpts := append([]runner.Option{}, opts...)
			if def.Parallel.Concurrency != 0 {
				runnerOpts = append(runnerOpts, runner.WithConcurrency(def.Parallel.Concurrency))
			}
			bundle.Registry.Register(key, &parallelCapability{
				runner: runner.New(bundle.Registry, runnerOpts...),
				steps:  steps,
			})
			groups[key] = steps
		}
	}
	return groups, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (b *Bundle) open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sql capability has no dsn")
	}
	if db, ok := b.databases[dsn]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot open database %s: %w", dsn, err)
	}
	b.databases[dsn] = db
	return db, nil
}

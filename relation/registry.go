package relation

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mickamy/ormrel/internal/naming"
	"github.com/mickamy/ormrel/orm"
)

// store holds the registrations shared by a Registry and the copies
// WithQuerier makes of it.
type store struct {
	mu        sync.RWMutex
	models    map[string]orm.ModelConfig
	relations map[string]Declarations
}

// Registry resolves model names to entities.
type Registry struct {
	db     orm.Querier
	store  *store
	prefix string
	plural bool
	log    logrus.FieldLogger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTablePrefix sets the prefix applied to models registered without one.
func WithTablePrefix(prefix string) RegistryOption {
	return func(r *Registry) { r.prefix = prefix }
}

// WithPluralTables derives default table names in plural form ("user" → "users").
func WithPluralTables() RegistryOption {
	return func(r *Registry) { r.plural = true }
}

// WithLogger sets the logger used for relation diagnostics.
func WithLogger(l logrus.FieldLogger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry returns an empty Registry running queries on db.
func NewRegistry(db orm.Querier, opts ...RegistryOption) *Registry {
	r := &Registry{
		db: db,
		store: &store{
			models:    make(map[string]orm.ModelConfig),
			relations: make(map[string]Declarations),
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithQuerier returns a Registry sharing r's registrations that runs on q,
// typically a transaction.
//
//	err := db.Transaction(ctx, func(tx *orm.Tx) error {
//		users, _ := reg.WithQuerier(tx).Entity("user")
//		_, err := users.Add(ctx, row)
//		return err
//	})
func (r *Registry) WithQuerier(q orm.Querier) *Registry {
	r2 := *r
	r2.db = q
	return &r2
}

// Querier returns the Querier entities run on.
func (r *Registry) Querier() orm.Querier { return r.db }

// Register adds a model and its relations, replacing any previous
// registration under the same name.
func (r *Registry) Register(cfg orm.ModelConfig, decls Declarations) error {
	if cfg.Name == "" {
		return errors.New("relation: model name is required")
	}
	for name, d := range decls {
		if d.Type != 0 && !d.Type.valid() {
			return errors.Errorf("relation: model %q relation %q: unknown type %d", cfg.Name, name, d.Type)
		}
	}
	if cfg.Table == "" {
		cfg.Table = naming.TableName(cfg.Name, r.plural)
	}
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = r.prefix
	}
	if decls == nil {
		decls = Declarations{}
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.models[cfg.Name] = cfg
	r.store.relations[cfg.Name] = decls.clone()
	return nil
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	names := make([]string, 0, len(r.store.models))
	for name := range r.store.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns a plain model handle for name.
func (r *Registry) Model(name string) (*orm.Model, error) {
	_, cfg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return orm.NewModel(r.db, cfg), nil
}

// Entity returns a fresh entity for name with every relation active.
func (r *Registry) Entity(name string) (*Entity, error) {
	name, cfg, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	decls := r.store.relations[name].clone()
	r.store.mu.RUnlock()

	return &Entity{
		model:     orm.NewModel(r.db, cfg),
		relations: decls,
		active:    AllRelations(),
		reg:       r,
		log:       r.log.WithField("model", name),
	}, nil
}

// lookup returns the registered name and configuration for name. With
// plural tables a plural name falls back to its singular ("tags" → "tag").
func (r *Registry) lookup(name string) (string, orm.ModelConfig, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if cfg, ok := r.store.models[name]; ok {
		return name, cfg, nil
	}
	if r.plural {
		if s := naming.Singular(name); s != name {
			if cfg, ok := r.store.models[s]; ok {
				return s, cfg, nil
			}
		}
	}
	return "", orm.ModelConfig{}, errors.Wrapf(ErrUnknownModel, "%q", name)
}

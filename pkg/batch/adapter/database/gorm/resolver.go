package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherflow/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver dispatches a connection name to the provider registered for its type.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider
	configs     dbconfig.DatabasesConfig
}

// ResolverParams are the Fx inputs of NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Configs     dbconfig.DatabasesConfig
}

// NewGormDBConnectionResolver creates a new GormDBConnectionResolver.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider)
	for _, provider := range p.DBProviders {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{dbProviders: providerMap, configs: p.Configs}
}

// ResolveDBConnection returns the named connection, reconnecting once when the pool no longer answers.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: database configuration '%s' not found", name)
	}
	provider, ok := r.dbProviders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: no provider registered for database type '%s' (connection '%s')", cfg.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, err
	}
	if err := conn.RefreshConnection(ctx); err != nil {
		logger.Warnf("DBConnectionResolver: connection '%s' failed ping (%v). Reconnecting.", name, err)
		return provider.ForceReconnect(name)
	}
	return conn, nil
}

// CloseAll closes every provider's connections.
func (r *GormDBConnectionResolver) CloseAll() error {
	var lastErr error
	for _, p := range r.dbProviders {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/weatherflow/pkg/batch/adapter/database/config"
)

func TestConnectionString(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{
		Type: "postgres", Host: "db", Port: 5432, User: "weather", Password: "tok en",
		Database: "app", Schema: "weather", Sslmode: "require",
	}
	assert.Equal(t,
		"host=db port=5432 user=weather password='tok en' dbname=app sslmode=require TimeZone=UTC search_path=weather",
		ConnectionString(cfg))

	cfg.Password = "token"
	cfg.Schema = ""
	cfg.Sslmode = ""
	assert.Equal(t, "host=db port=5432 user=weather password=token dbname=app sslmode=disable TimeZone=UTC", ConnectionString(cfg))
}

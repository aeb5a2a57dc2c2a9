// Command yessqld is the reference entrypoint wiring the session package
// against its collaborators and exposing them over HTTP: backend
// configuration built in main, entity/index types declared alongside it,
// and a single call that starts serving.
package main

import (
	"log/slog"
	"os"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/descriptor"
	"github.com/andrewcoll/yessql/memstore"
	"github.com/andrewcoll/yessql/restapi"
)

// Person is a sample session-managed entity.
type Person struct {
	Id        int64
	FirstName string
	LastName  string
	City      string
}

// PersonByCityIndex is a pure MapIndex row: one row per Person, keyed by
// nothing beyond its own id (no Reduce fold).
type PersonByCityIndex struct {
	yessql.IndexRow
	Id       int64
	PersonId int64
	City     string
}

// CityPopulationIndex is a ReduceIndex: one row per city, its Count folded
// across every Person mapped into that group.
type CityPopulationIndex struct {
	yessql.IndexRow
	Id    int64
	City  string
	Count int
}

func buildRegistry() *descriptor.Registry {
	registry := descriptor.NewRegistry()

	descriptor.For[Person, PersonByCityIndex]().
		Map(func(p *Person) ([]*PersonByCityIndex, error) {
			return []*PersonByCityIndex{{PersonId: p.Id, City: p.City}}, nil
		}).
		Register(registry)

	descriptor.For[Person, CityPopulationIndex]().
		Map(func(p *Person) ([]*CityPopulationIndex, error) {
			return []*CityPopulationIndex{{City: p.City, Count: 1}}, nil
		}).
		GroupBy("City").
		Reduce(func(key any, rows []*CityPopulationIndex) (*CityPopulationIndex, error) {
			out := &CityPopulationIndex{City: key.(string)}
			for _, r := range rows {
				out.Count += r.Count
			}
			return out, nil
		}).
		Delete(func(current *CityPopulationIndex, deleted []*CityPopulationIndex) (*CityPopulationIndex, error) {
			current.Count -= len(deleted)
			if current.Count <= 0 {
				return nil, nil
			}
			return current, nil
		}).
		Register(registry)

	return registry
}

func main() {
	yessql.ConfigureLogging()

	registry := buildRegistry()
	docStore := memstore.New()
	connFactory := memstore.NewConnectionFactory()
	executor := memstore.NewExecutor()

	sessionFactory := restapi.NewSessionFactory(connFactory, docStore, executor, registry)

	server := restapi.New(sessionFactory)
	server.DevBypass = true
	server.OktaDomain = os.Getenv("YESSQL_OKTA_DOMAIN")
	server.WithSwagger()

	v1 := server.Router().Group("/api/v1")
	restapi.RegisterEntity[Person](server, v1, "/people")

	addr := os.Getenv("YESSQL_LISTEN_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}
	slog.Info("yessqld listening", "addr", addr)
	if err := server.Router().Run(addr); err != nil {
		slog.Error("yessqld exited", "error", err)
		os.Exit(1)
	}
}

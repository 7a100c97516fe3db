package http

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the run service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	latencyType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Latency",
		Description: "Latency statistics in milliseconds",
		Fields: graphql.Fields{
			"min":    &graphql.Field{Type: graphql.Float},
			"max":    &graphql.Field{Type: graphql.Float},
			"mean":   &graphql.Field{Type: graphql.Float},
			"median": &graphql.Field{Type: graphql.Float},
			"p95":    &graphql.Field{Type: graphql.Float},
			"p99":    &graphql.Field{Type: graphql.Float},
		},
	})

	codeCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "CodeCount",
		Fields: graphql.Fields{
			"code":  &graphql.Field{Type: graphql.Int},
			"count": &graphql.Field{Type: graphql.Int},
		},
	})

	counterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Counter",
		Fields: graphql.Fields{
			"name":  &graphql.Field{Type: graphql.String},
			"value": &graphql.Field{Type: graphql.Float},
		},
	})

	summaryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RunSummary",
		Fields: graphql.Fields{
			"run_id":           &graphql.Field{Type: graphql.String},
			"started_at":       &graphql.Field{Type: graphql.DateTime},
			"finished_at":      &graphql.Field{Type: graphql.DateTime},
			"vusers_created":   &graphql.Field{Type: graphql.Int},
			"vusers_completed": &graphql.Field{Type: graphql.Int},
			"vusers_failed":    &graphql.Field{Type: graphql.Int},
			"requests":         &graphql.Field{Type: graphql.Int},
			"errors":           &graphql.Field{Type: graphql.Int},
			"rps":              &graphql.Field{Type: graphql.Float},
			"latency_ms":       &graphql.Field{Type: latencyType},
			"codes": &graphql.Field{
				Type: graphql.NewList(codeCountType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, _ := p.Source.(*domain.RunSummary)
					if s == nil {
						return nil, nil
					}
					codes := make([]int, 0, len(s.Codes))
					for code := range s.Codes {
						codes = append(codes, code)
					}
					sort.Ints(codes)
					out := make([]map[string]interface{}, 0, len(codes))
					for _, code := range codes {
						out = append(out, map[string]interface{}{"code": code, "count": s.Codes[code]})
					}
					return out, nil
				},
			},
			"counters": &graphql.Field{
				Type: graphql.NewList(counterType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, _ := p.Source.(*domain.RunSummary)
					if s == nil {
						return nil, nil
					}
					names := make([]string, 0, len(s.Counters))
					for name := range s.Counters {
						names = append(names, name)
					}
					sort.Strings(names)
					out := make([]map[string]interface{}, 0, len(names))
					for _, name := range names {
						out = append(out, map[string]interface{}{"name": name, "value": s.Counters[name]})
					}
					return out, nil
				},
			},
		},
	})

	runType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Run",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"target":      &graphql.Field{Type: graphql.String},
			"status":      &graphql.Field{Type: graphql.String},
			"error":       &graphql.Field{Type: graphql.String},
			"started_at":  &graphql.Field{Type: graphql.DateTime},
			"finished_at": &graphql.Field{Type: graphql.DateTime},
			"summary":     &graphql.Field{Type: summaryType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"runs": &graphql.Field{
				Type:        graphql.NewList(runType),
				Description: "List runs, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: defaultPageSize},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					runs, _, err := deps.Runs.List(p.Context, offset, limit)
					if err != nil {
						return nil, err
					}
					out := make([]*domain.Run, len(runs))
					for i := range runs {
						out[i] = &runs[i]
					}
					return out, nil
				},
			},
			"run": &graphql.Field{
				Type:        runType,
				Description: "Get a run by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					run, err := deps.Runs.Get(p.Context, p.Args["id"].(string))
					if usecases.IsNotFound(err) {
						return nil, nil
					}
					return run, err
				},
			},
			"hooks": &graphql.Field{
				Type:        graphql.NewList(graphql.String),
				Description: "Hooks scripts may reference",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Hooks.Names(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

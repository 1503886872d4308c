package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	graphql "github.com/hasura/go-graphql-client"
	"github.com/tidwall/gjson"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
)

const (
	getUserQuery = `query GetUser($id: ID!) {
  user(id: $id) {
    id
    preferences
  }
}`

	updatePreferencesMutation = `mutation UpdateUserPreferences($id: ID!, $preferences: AWSJSON) {
  updateUser(input: {id: $id, preferences: $preferences}) {
    id
  }
}`
)

// ErrUserNotFound is returned when the store has no user with the given id
var ErrUserNotFound = apperr.NotFound("User not found")

// GraphQLClient talks to the user-preferences store
type GraphQLClient struct {
	gql *graphql.Client
}

// NewGraphQLClient creates a client for the store at url.
// The API key is sent in header on every call when non-empty.
func NewGraphQLClient(url, apiKey, header string, httpClient *http.Client) *GraphQLClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if header == "" {
		header = "x-api-key"
	}
	gql := graphql.NewClient(url, httpClient)
	if apiKey != "" {
		gql = gql.WithRequestModifier(func(r *http.Request) {
			r.Header.Set(header, apiKey)
		})
	}
	return &GraphQLClient{gql: gql}
}

// GetUserPreferences returns the raw stored preferences of a user.
// The store may hold the value as a JSON string or an object; both come back as
// the document bytes. A user without preferences yields nil.
func (c *GraphQLClient) GetUserPreferences(ctx context.Context, userID string) ([]byte, error) {
	data, err := c.do(ctx, getUserQuery, map[string]any{"id": userID})
	if err != nil {
		return nil, err
	}

	user := data.Get("user")
	if !user.Exists() || user.Type == gjson.Null {
		return nil, ErrUserNotFound
	}

	prefs := user.Get("preferences")
	switch {
	case !prefs.Exists(), prefs.Type == gjson.Null:
		return nil, nil
	case prefs.Type == gjson.String:
		return []byte(prefs.Str), nil
	default:
		return []byte(prefs.Raw), nil
	}
}

// UpdateUserPreferences replaces the stored preferences with the serialized document
func (c *GraphQLClient) UpdateUserPreferences(ctx context.Context, userID string, serialized string) error {
	_, err := c.do(ctx, updatePreferencesMutation, map[string]any{
		"id":          userID,
		"preferences": serialized,
	})
	return err
}

// do runs one operation and returns its data object. Non-200 responses and
// GraphQL errors both fail the call.
func (c *GraphQLClient) do(ctx context.Context, query string, variables map[string]any) (gjson.Result, error) {
	data, err := c.gql.ExecRaw(ctx, query, variables)
	if err != nil {
		var gqlErrs graphql.Errors
		if errors.As(err, &gqlErrs) && len(gqlErrs) > 0 {
			messages := make([]string, 0, len(gqlErrs))
			for _, e := range gqlErrs {
				messages = append(messages, e.Message)
			}
			return gjson.Result{}, fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
		}
		return gjson.Result{}, fmt.Errorf("graphql request failed: %w", err)
	}
	if len(data) > 0 && !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.New("graphql response data is not valid JSON")
	}
	return gjson.ParseBytes(data), nil
}

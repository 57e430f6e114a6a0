package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/lemarcheluxe/backend/internal/telemetry"
)

// Index names
const (
	IndexProducts = "products"
	IndexProfiles = "profiles"
)

// Client wraps the Elasticsearch client with marketplace queries
type Client struct {
	es *elasticsearch.Client
}

// NewClient connects to Elasticsearch at url and verifies the connection
func NewClient(url string) (*Client, error) {
	return newClient(elasticsearch.Config{Addresses: []string{url}})
}

func newClient(cfg elasticsearch.Config) (*Client, error) {
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch info returned [%s]", res.Status())
	}
	return &Client{es: es}, nil
}

// InitializeIndices creates the search indices when missing
func (c *Client) InitializeIndices(ctx context.Context) error {
	if err := c.createIndex(ctx, IndexProducts, productsMapping); err != nil {
		return fmt.Errorf("failed to create products index: %w", err)
	}
	if err := c.createIndex(ctx, IndexProfiles, profilesMapping); err != nil {
		return fmt.Errorf("failed to create profiles index: %w", err)
	}
	return nil
}

var productsMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "keyword"},
			"user_id":     map[string]interface{}{"type": "keyword"},
			"title":       map[string]interface{}{"type": "text", "analyzer": "french"},
			"description": map[string]interface{}{"type": "text", "analyzer": "french"},
			"brand": map[string]interface{}{
				"type":   "text",
				"fields": map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword"}},
			},
			"model":       map[string]interface{}{"type": "text"},
			"category":    map[string]interface{}{"type": "keyword"},
			"subcategory": map[string]interface{}{"type": "keyword"},
			"condition":   map[string]interface{}{"type": "keyword"},
			"status":      map[string]interface{}{"type": "keyword"},
			"location":    map[string]interface{}{"type": "keyword"},
			"price":       map[string]interface{}{"type": "long"},
			"created_at":  map[string]interface{}{"type": "date"},
		},
	},
}

var profilesMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":    map[string]interface{}{"type": "keyword"},
			"email": map[string]interface{}{"type": "keyword"},
			"full_name": map[string]interface{}{
				"type":   "text",
				"fields": map[string]interface{}{"keyword": map[string]interface{}{"type": "keyword"}},
			},
			"username":   map[string]interface{}{"type": "keyword"},
			"city":       map[string]interface{}{"type": "keyword"},
			"created_at": map[string]interface{}{"type": "date"},
		},
	},
}

func (c *Client) createIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	res, err := c.es.Indices.Exists([]string{indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err = c.es.Indices.Create(indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return responseError(res, "creating index")
}

// IndexProduct adds or replaces a listing document
func (c *Client) IndexProduct(ctx context.Context, doc ProductDoc) error {
	return c.index(ctx, IndexProducts, doc.ID, doc)
}

// IndexProfile adds or replaces a profile document
func (c *Client) IndexProfile(ctx context.Context, doc ProfileDoc) error {
	return c.index(ctx, IndexProfiles, doc.ID, doc)
}

// DeleteProduct removes a listing. Missing documents are not an error.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	res, err := c.es.Delete(IndexProducts, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError(res, "deleting product")
}

func (c *Client) index(ctx context.Context, indexName, id string, doc interface{}) (err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceExternalAPI(ctx, "elasticsearch", "index_"+indexName)
	defer func() { telemetry.EndSpan(span, err) }()

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	res, err := c.es.Index(indexName, bytes.NewReader(body),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "indexing "+indexName)
}

// SearchProfiles returns ids of profiles whose email, name or username
// contains query, best match first
func (c *Client) SearchProfiles(ctx context.Context, query, excludeID string, limit int) ([]string, error) {
	pattern := "*" + escapeWildcard(strings.ToLower(query)) + "*"
	wildcard := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"wildcard": map[string]interface{}{
				field: map[string]interface{}{"value": pattern, "case_insensitive": true},
			},
		}
	}

	boolQuery := map[string]interface{}{
		"should": []map[string]interface{}{
			wildcard("email"),
			wildcard("username"),
			wildcard("full_name.keyword"),
			{"match": map[string]interface{}{
				"full_name": map[string]interface{}{"query": query, "fuzziness": "AUTO", "boost": 2.0},
			}},
		},
		"minimum_should_match": 1,
	}
	if excludeID != "" {
		boolQuery["must_not"] = []map[string]interface{}{
			{"term": map[string]interface{}{"id": excludeID}},
		}
	}

	ids, _, err := c.searchIDs(ctx, IndexProfiles, map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  limit,
	})
	return ids, err
}

// ProductQuery holds listing search parameters
type ProductQuery struct {
	Query     string
	Statuses  []string
	Category  string
	Brand     string
	Condition string
	MinPrice  int64
	MaxPrice  int64
	Limit     int
	Offset    int
}

// SearchProducts runs a full-text listing search and returns matching ids
// in rank order plus the total hit count
func (c *Client) SearchProducts(ctx context.Context, q ProductQuery) ([]string, int, error) {
	filter := []map[string]interface{}{}
	if len(q.Statuses) > 0 {
		filter = append(filter, map[string]interface{}{"terms": map[string]interface{}{"status": q.Statuses}})
	}
	if q.Category != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"category": q.Category}})
	}
	if q.Brand != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"brand.keyword": q.Brand}})
	}
	if q.Condition != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"condition": q.Condition}})
	}
	if q.MinPrice > 0 || q.MaxPrice > 0 {
		rng := map[string]interface{}{}
		if q.MinPrice > 0 {
			rng["gte"] = q.MinPrice
		}
		if q.MaxPrice > 0 {
			rng["lte"] = q.MaxPrice
		}
		filter = append(filter, map[string]interface{}{"range": map[string]interface{}{"price": rng}})
	}

	boolQuery := map[string]interface{}{"filter": filter}
	if q.Query != "" {
		boolQuery["must"] = []map[string]interface{}{
			{"multi_match": map[string]interface{}{
				"query":     q.Query,
				"fields":    []string{"title^3", "brand^2", "model^2", "description"},
				"fuzziness": "AUTO",
			}},
		}
	}

	return c.searchIDs(ctx, IndexProducts, map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"from": q.Offset,
		"size": q.Limit,
	})
}

func (c *Client) searchIDs(ctx context.Context, indexName string, query map[string]interface{}) (_ []string, _ int, err error) {
	ctx, span := telemetry.GetBusinessEvents().TraceExternalAPI(ctx, "elasticsearch", "search_"+indexName)
	defer func() { telemetry.EndSpan(span, err) }()

	body, err := json.Marshal(query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indexName),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "searching "+indexName); err != nil {
		return nil, 0, err
	}

	var searchResp struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]string, 0, len(searchResp.Hits.Hits))
	for _, hit := range searchResp.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, searchResp.Hits.Total.Value, nil
}

func responseError(res *esapi.Response, action string) error {
	if !res.IsError() {
		return nil
	}
	raw, _ := io.ReadAll(res.Body)
	var errResp map[string]interface{}
	if err := json.Unmarshal(raw, &errResp); err != nil {
		return fmt.Errorf("error %s: [%s]", action, res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`).Replace(s)
}

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Keyword sub-fields hold the whole value so that wildcard queries match
// substrings the way the SQL store's LIKE does.
var roomIndexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":                map[string]interface{}{"type": "long"},
			"title":             textWithKeyword(512),
			"description":       textWithKeyword(4096),
			"leader_user_id":    map[string]interface{}{"type": "long"},
			"leader_name":       textWithKeyword(256),
			"force_remain":      map[string]interface{}{"type": "boolean"},
			"assistant_enabled": map[string]interface{}{"type": "boolean"},
			"created_at":        map[string]interface{}{"type": "date"},
		},
	},
}

func textWithKeyword(ignoreAbove int) map[string]interface{} {
	return map[string]interface{}{
		"type": "text",
		"fields": map[string]interface{}{
			"keyword": map[string]interface{}{"type": "keyword", "ignore_above": ignoreAbove},
		},
	}
}

var roomSortFields = map[string]string{
	"id":         "id",
	"title":      "title.keyword",
	"created_at": "created_at",
	"createdAt":  "created_at",
}

// ESRoomSearchRepository indexes rooms in Elasticsearch.
type ESRoomSearchRepository struct {
	client *elasticsearch.Client
	index  string
}

// NewESRoomSearchRepository creates a room index over client.
func NewESRoomSearchRepository(client *elasticsearch.Client, index string) *ESRoomSearchRepository {
	return &ESRoomSearchRepository{client: client, index: index}
}

// EnsureIndex creates the room index with its mapping if it is missing.
func (r *ESRoomSearchRepository) EnsureIndex(ctx context.Context) error {
	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", r.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	data, err := json.Marshal(roomIndexMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	res, err = r.client.Indices.Create(r.index,
		r.client.Indices.Create.WithContext(ctx),
		r.client.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", r.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	l := log.Ctx(ctx)
	l.Info().Str("index", r.index).Msg("room search index created")
	return nil
}

// IndexRoom creates or replaces the room's document.
func (r *ESRoomSearchRepository) IndexRoom(ctx context.Context, doc *domain.RoomDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	res, err := r.client.Index(r.index, bytes.NewReader(data),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(strconv.FormatInt(doc.ID, 10)),
		r.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to index room %d: %w", doc.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

// DeleteRoom removes the room's document. A missing document is not an error.
func (r *ESRoomSearchRepository) DeleteRoom(ctx context.Context, roomID int64) error {
	res, err := r.client.Delete(r.index, strconv.FormatInt(roomID, 10),
		r.client.Delete.WithContext(ctx),
		r.client.Delete.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to delete room %d: %w", roomID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

// SearchRooms runs q against the index and returns one page of rooms.
func (r *ESRoomSearchRepository) SearchRooms(ctx context.Context, q domain.RoomQuery) ([]domain.Room, int64, error) {
	data, err := json.Marshal(buildRoomSearchBody(q))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search rooms: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var result esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	l := log.Ctx(ctx)
	rooms := make([]domain.Room, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var doc domain.RoomDocument
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			l.Warn().Err(err).Msg("skipping undecodable room document")
			continue
		}
		rooms = append(rooms, doc.Room())
	}
	return rooms, result.Hits.Total.Value, nil
}

// buildRoomSearchBody translates a room query into the search DSL,
// mirroring the filters of GormRoomRepository.Search.
func buildRoomSearchBody(q domain.RoomQuery) map[string]interface{} {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size < 1 {
		q.Size = 20
	}

	field, ok := roomSortFields[q.SortBy]
	if !ok {
		field = "id"
	}
	order := "asc"
	if q.Desc {
		order = "desc"
	}

	return map[string]interface{}{
		"from":             q.Page * q.Size,
		"size":             q.Size,
		"track_total_hits": true,
		"query":            roomQueryClause(q),
		"sort": []interface{}{
			map[string]interface{}{field: map[string]interface{}{"order": order}},
		},
	}
}

func roomQueryClause(q domain.RoomQuery) map[string]interface{} {
	search := strings.TrimSpace(q.Search)

	switch strings.ToLower(q.SearchBy) {
	case domain.SearchByTitle:
		return containsClause("title.keyword", search)
	case domain.SearchByDescription:
		return containsClause("description.keyword", search)
	case domain.SearchByLeader:
		return containsClause("leader_name.keyword", search)
	case domain.SearchByForceRemain:
		return map[string]interface{}{
			"term": map[string]interface{}{"force_remain": strings.EqualFold(search, "true")},
		}
	}

	if search == "" {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"should": []interface{}{
				containsClause("title.keyword", search),
				containsClause("description.keyword", search),
				containsClause("leader_name.keyword", search),
			},
			"minimum_should_match": 1,
		},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// containsClause matches documents whose field contains s, ignoring case.
func containsClause(field, s string) map[string]interface{} {
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			field: map[string]interface{}{
				"value":            "*" + wildcardEscaper.Replace(s) + "*",
				"case_insensitive": true,
			},
		},
	}
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

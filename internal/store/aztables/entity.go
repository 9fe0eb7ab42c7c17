package aztables

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/tasksync-server/internal/domain"
	"github.com/listenupapp/tasksync-server/internal/store"
)

const (
	edmInt64    = "Edm.Int64"
	edmDateTime = "Edm.DateTime"

	// sharePartition holds the token digest index. '~' is outside the
	// base64url alphabet, so no owner partition can collide with it.
	sharePartition = "~share"

	// chunkUnits caps each Tasks property below the 32K UTF-16 unit limit.
	chunkUnits = 30000
	// maxChunks keeps the entity well under the 252 property limit.
	maxChunks = 32
	// maxEntityBytes leaves headroom under the 1 MiB entity limit.
	maxEntityBytes = 960 * 1024

	// edmTimeLayout matches Edm.DateTime, which stores 100ns ticks.
	edmTimeLayout = "2006-01-02T15:04:05.0000000Z"
)

// partitionKey encodes an owner. Owners are opaque and may contain
// characters ('/', '#', '?') Table Storage forbids in keys.
func partitionKey(owner string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(owner))
}

func rowKey(key domain.Key) string {
	return string(key.TaskType) + "|" + string(key.Category)
}

// chunk splits s into pieces of at most limit UTF-16 code units without
// splitting a rune.
func chunk(s string, limit int) []string {
	var (
		parts []string
		start int
		units int
	)
	for i, r := range s {
		n := 1
		if r >= 0x10000 {
			n = 2
		}
		if units+n > limit {
			parts = append(parts, s[start:i])
			start, units = i, 0
		}
		units += n
	}
	if start < len(s) || len(parts) == 0 {
		parts = append(parts, s[start:])
	}
	return parts
}

func edmTime(t time.Time) string {
	return t.UTC().Truncate(100 * time.Nanosecond).Format(edmTimeLayout)
}

func taskProp(i int) string {
	return fmt.Sprintf("Tasks%02d", i)
}

// encodeEntity renders a task library as a Table Storage entity.
func encodeEntity(rec *domain.TaskLibrary) ([]byte, error) {
	tasks, err := json.Marshal(domain.CloneTasks(rec.Tasks))
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}
	parts := chunk(string(tasks), chunkUnits)
	if len(parts) > maxChunks {
		return nil, store.ErrInvalidInput.WithCause(fmt.Errorf("%s: task list too large for table storage", rec.Key()))
	}

	ent := map[string]any{
		"PartitionKey":            partitionKey(rec.Owner),
		"RowKey":                  rowKey(rec.Key()),
		"ID":                      rec.ID,
		"Owner":                   rec.Owner,
		"TaskType":                string(rec.TaskType),
		"Category":                string(rec.Category),
		"Version":                 strconv.FormatInt(rec.Version, 10),
		"Version@odata.type":      edmInt64,
		"Revision":                strconv.FormatInt(rec.Revision, 10),
		"Revision@odata.type":     edmInt64,
		"Shared":                  rec.Shared,
		"ShareTokenHash":          rec.ShareTokenHash,
		"CreatedAt":               edmTime(rec.CreatedAt),
		"CreatedAt@odata.type":    edmDateTime,
		"LastModified":            edmTime(rec.LastModified),
		"LastModified@odata.type": edmDateTime,
		"TaskChunks":              len(parts),
	}
	for i, p := range parts {
		ent[taskProp(i)] = p
	}

	payload, err := json.Marshal(ent)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	if len(payload) > maxEntityBytes {
		return nil, store.ErrInvalidInput.WithCause(fmt.Errorf("%s: entity is %d bytes", rec.Key(), len(payload)))
	}
	return payload, nil
}

// decodeEntity parses an entity produced by encodeEntity.
func decodeEntity(raw []byte) (*domain.TaskLibrary, error) {
	var ent map[string]any
	if err := json.Unmarshal(raw, &ent); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}

	version, err := int64Prop(ent, "Version")
	if err != nil {
		return nil, err
	}
	revision, err := int64Prop(ent, "Revision")
	if err != nil {
		return nil, err
	}
	chunks, err := int64Prop(ent, "TaskChunks")
	if err != nil {
		return nil, err
	}
	createdAt, err := timeProp(ent, "CreatedAt")
	if err != nil {
		return nil, err
	}
	lastModified, err := timeProp(ent, "LastModified")
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for i := range int(chunks) {
		b.WriteString(stringProp(ent, taskProp(i)))
	}
	var tasks []string
	if b.Len() > 0 {
		if err := json.Unmarshal([]byte(b.String()), &tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	}
	if tasks == nil {
		tasks = []string{}
	}

	shared, _ := ent["Shared"].(bool)
	lib := &domain.TaskLibrary{
		ID:             stringProp(ent, "ID"),
		Owner:          stringProp(ent, "Owner"),
		TaskType:       domain.TaskType(stringProp(ent, "TaskType")),
		Category:       domain.Category(stringProp(ent, "Category")),
		Tasks:          tasks,
		Version:        version,
		Revision:       revision,
		Shared:         shared,
		ShareTokenHash: stringProp(ent, "ShareTokenHash"),
		CreatedAt:      createdAt,
		LastModified:   lastModified,
	}
	if !lib.Shared {
		lib.ShareTokenHash = ""
	}
	return lib, nil
}

// shareIndexEntity points a token digest at a library row.
type shareIndexEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	LibraryPK    string `json:"LibraryPK"`
	LibraryRK    string `json:"LibraryRK"`
}

func stringProp(ent map[string]any, name string) string {
	s, _ := ent[name].(string)
	return s
}

// int64Prop reads an integer that the service may return as a JSON number
// (Edm.Int32) or as a string (Edm.Int64).
func int64Prop(ent map[string]any, name string) (int64, error) {
	switch v := ent[name].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", name, err)
		}
		return n, nil
	case float64:
		return int64(v), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("decode %s: unexpected %T", name, v)
	}
}

func timeProp(ent map[string]any, name string) (time.Time, error) {
	s := stringProp(ent, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return t, nil
}

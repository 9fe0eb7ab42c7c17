package aztables

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// fakeTable is an in-memory stand-in for one Azure table with ETag semantics.
type fakeTable struct {
	mu      sync.Mutex
	seq     int
	rows    map[string]fakeRow
	failAll error
}

type fakeRow struct {
	pk, rk string
	etag   azcore.ETag
	value  []byte
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]fakeRow{}}
}

func rowID(pk, rk string) string { return pk + "\x00" + rk }

func respErr(status int, code string) error {
	return &azcore.ResponseError{StatusCode: status, ErrorCode: code}
}

func entityKeys(entity []byte) (string, string, error) {
	var keys struct {
		PartitionKey string `json:"PartitionKey"`
		RowKey       string `json:"RowKey"`
	}
	if err := json.Unmarshal(entity, &keys); err != nil {
		return "", "", err
	}
	return keys.PartitionKey, keys.RowKey, nil
}

func (f *fakeTable) nextETag() azcore.ETag {
	f.seq++
	return azcore.ETag(fmt.Sprintf("W/\"%d\"", f.seq))
}

func (f *fakeTable) GetEntity(_ context.Context, pk, rk string, _ *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return aztables.GetEntityResponse{}, f.failAll
	}

	row, ok := f.rows[rowID(pk, rk)]
	if !ok {
		return aztables.GetEntityResponse{}, respErr(http.StatusNotFound, "ResourceNotFound")
	}
	return aztables.GetEntityResponse{ETag: row.etag, Value: append([]byte(nil), row.value...)}, nil
}

func (f *fakeTable) AddEntity(_ context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	pk, rk, err := entityKeys(entity)
	if err != nil {
		return aztables.AddEntityResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return aztables.AddEntityResponse{}, f.failAll
	}

	id := rowID(pk, rk)
	if _, ok := f.rows[id]; ok {
		return aztables.AddEntityResponse{}, respErr(http.StatusConflict, "EntityAlreadyExists")
	}
	etag := f.nextETag()
	f.rows[id] = fakeRow{pk: pk, rk: rk, etag: etag, value: append([]byte(nil), entity...)}
	return aztables.AddEntityResponse{ETag: etag}, nil
}

func (f *fakeTable) UpdateEntity(_ context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error) {
	pk, rk, err := entityKeys(entity)
	if err != nil {
		return aztables.UpdateEntityResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return aztables.UpdateEntityResponse{}, f.failAll
	}

	id := rowID(pk, rk)
	row, ok := f.rows[id]
	if !ok {
		return aztables.UpdateEntityResponse{}, respErr(http.StatusNotFound, "ResourceNotFound")
	}
	if opts != nil && opts.IfMatch != nil && *opts.IfMatch != azcore.ETagAny && *opts.IfMatch != row.etag {
		return aztables.UpdateEntityResponse{}, respErr(http.StatusPreconditionFailed, "UpdateConditionNotSatisfied")
	}
	etag := f.nextETag()
	f.rows[id] = fakeRow{pk: pk, rk: rk, etag: etag, value: append([]byte(nil), entity...)}
	return aztables.UpdateEntityResponse{ETag: etag}, nil
}

func (f *fakeTable) DeleteEntity(_ context.Context, pk, rk string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return aztables.DeleteEntityResponse{}, f.failAll
	}

	id := rowID(pk, rk)
	row, ok := f.rows[id]
	if !ok {
		return aztables.DeleteEntityResponse{}, respErr(http.StatusNotFound, "ResourceNotFound")
	}
	if opts != nil && opts.IfMatch != nil && *opts.IfMatch != azcore.ETagAny && *opts.IfMatch != row.etag {
		return aztables.DeleteEntityResponse{}, respErr(http.StatusPreconditionFailed, "UpdateConditionNotSatisfied")
	}
	delete(f.rows, id)
	return aztables.DeleteEntityResponse{}, nil
}

// NewListEntitiesPager understands the two filter shapes the store issues:
// "PartitionKey eq '<pk>'" and "PartitionKey ne '<pk>'".
func (f *fakeTable) NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	match := func(string) bool { return true }
	if opts != nil && opts.Filter != nil {
		filter := *opts.Filter
		switch {
		case strings.HasPrefix(filter, "PartitionKey eq '"):
			want := strings.TrimSuffix(strings.TrimPrefix(filter, "PartitionKey eq '"), "'")
			match = func(pk string) bool { return pk == want }
		case strings.HasPrefix(filter, "PartitionKey ne '"):
			skip := strings.TrimSuffix(strings.TrimPrefix(filter, "PartitionKey ne '"), "'")
			match = func(pk string) bool { return pk != skip }
		}
	}

	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(context.Context, *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failAll != nil {
				return aztables.ListEntitiesResponse{}, f.failAll
			}

			ids := make([]string, 0, len(f.rows))
			for id, row := range f.rows {
				if match(row.pk) {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)

			var resp aztables.ListEntitiesResponse
			for _, id := range ids {
				resp.Entities = append(resp.Entities, append([]byte(nil), f.rows[id].value...))
			}
			if opts != nil && opts.Top != nil && int(*opts.Top) < len(resp.Entities) {
				resp.Entities = resp.Entities[:*opts.Top]
			}
			return resp, nil
		},
	})
}

package store

import (
	"cmp"
	"slices"

	"github.com/listenupapp/tasksync-server/internal/domain"
)

// SortLibraries orders libraries by owner, then task type and category in
// their declared order (couple before funny, truth before dare).
func SortLibraries(libs []*domain.TaskLibrary) {
	slices.SortFunc(libs, func(a, b *domain.TaskLibrary) int {
		return cmp.Or(
			cmp.Compare(a.Owner, b.Owner),
			cmp.Compare(slices.Index(domain.TaskTypes, a.TaskType), slices.Index(domain.TaskTypes, b.TaskType)),
			cmp.Compare(slices.Index(domain.Categories, a.Category), slices.Index(domain.Categories, b.Category)),
		)
	})
}

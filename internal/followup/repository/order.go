package repository

import "sort"

// sortByRunAt orders jobs oldest first; UPDATE ... RETURNING does not keep
// the order of the claiming CTE.
func sortByRunAt(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].RunAt.Equal(jobs[j].RunAt) {
			return jobs[i].ID.String() < jobs[j].ID.String()
		}
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
}

// Package namespace tracks which launch-name prefixes ("namespaces") a
// project's test items actually use, so SuggestPipeline can bias its
// boosting config (boosting_config["chosen_namespaces"] in
// _examples/original_source/service/suggest_service.py) toward namespaces
// the project has actually seen, instead of scoring every possible launch
// name equally. Grounded on the teacher's store.Store-backed, per-project
// mutable state pattern.
package namespace

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/reportflow/analyzer-core/src/store"
)

// chosenFraction is the minimum share of a project's total observations a
// namespace must account for to be "chosen". Namespaces below this
// fraction are noise (one-off launch names) rather than a real convention.
const chosenFraction = 0.02

// Tracker maintains a namespace frequency table per project, backed by
// store.Store, serialized with a per-project mutex so Update/Clear never
// race with each other for the same project (spec.md §5's "one writer at a
// time per project" policy).
type Tracker struct {
	st    store.Store
	locks keyedLocks
}

// New returns a Tracker backed by st.
func New(st store.Store) *Tracker {
	return &Tracker{st: st, locks: newKeyedLocks()}
}

// Update extracts a namespace from each of launchNames and increments its
// count for project. A namespace is the portion of a launch name before
// its first "." or "/" separator, lowercased; a launch name with neither
// separator is its own namespace.
func (t *Tracker) Update(ctx context.Context, project string, launchNames []string) error {
	mu := t.locks.forProject(project)
	mu.Lock()
	defer mu.Unlock()

	counts, err := t.st.LoadNamespaces(ctx, project)
	if err != nil {
		return err
	}
	for _, name := range launchNames {
		ns := extractNamespace(name)
		if ns == "" {
			continue
		}
		counts[ns]++
	}
	return t.st.SaveNamespaces(ctx, project, counts)
}

// ChosenNamespaces returns the namespaces that account for at least
// chosenFraction of project's observed launch names, most frequent first.
func (t *Tracker) ChosenNamespaces(ctx context.Context, project string) ([]string, error) {
	mu := t.locks.forProject(project)
	mu.Lock()
	defer mu.Unlock()

	counts, err := t.st.LoadNamespaces(ctx, project)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil, nil
	}

	chosen := make([]string, 0, len(counts))
	for ns, c := range counts {
		if float64(c)/float64(total) >= chosenFraction {
			chosen = append(chosen, ns)
		}
	}
	sort.Slice(chosen, func(i, j int) bool {
		if counts[chosen[i]] != counts[chosen[j]] {
			return counts[chosen[i]] > counts[chosen[j]]
		}
		return chosen[i] < chosen[j]
	})
	return chosen, nil
}

// Clear removes project's namespace frequency table entirely.
func (t *Tracker) Clear(ctx context.Context, project string) error {
	mu := t.locks.forProject(project)
	mu.Lock()
	defer mu.Unlock()

	return t.st.ClearNamespaces(ctx, project)
}

func extractNamespace(launchName string) string {
	name := strings.ToLower(strings.TrimSpace(launchName))
	if name == "" {
		return ""
	}
	if idx := strings.IndexAny(name, "./"); idx > 0 {
		return name[:idx]
	}
	return name
}

// keyedLocks hands out one *sync.Mutex per key, creating it on first use.
type keyedLocks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

func newKeyedLocks() keyedLocks {
	return keyedLocks{perID: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) forProject(project string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.perID[project]
	if !ok {
		m = &sync.Mutex{}
		k.perID[project] = m
	}
	return m
}

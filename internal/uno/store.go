// internal/uno/store.go
package uno

import "sync"

// Store tracks the machine for each table. There is no process-wide game
// singleton: every table owns an independent machine and context.
type Store struct {
	mu     sync.Mutex
	tables map[string]*Machine
}

func NewStore() *Store {
	return &Store{tables: make(map[string]*Machine)}
}

// Get returns the machine for a table, if one exists.
func (s *Store) Get(table string) (*Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tables[table]
	return m, ok
}

// GetOrCreate returns the table's machine, building and starting one via
// factory on first use.
func (s *Store) GetOrCreate(table string, factory func() *Machine) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.tables[table]; ok {
		return m
	}
	m := factory()
	s.tables[table] = m
	return m
}

// Delete closes and removes a table's machine.
func (s *Store) Delete(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.tables[table]; ok {
		m.Close()
		delete(s.tables, table)
	}
}

// Close tears down every machine in the store.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for table, m := range s.tables {
		m.Close()
		delete(s.tables, table)
	}
}

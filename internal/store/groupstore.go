// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/plosson/siteio/internal/apierr"
	"github.com/plosson/siteio/internal/model"
)

// GroupStore persists named email sets as a single JSON array at
// <data>/groups.json, keyed in memory by lowercase name.
type GroupStore struct {
	path string
	mu   sync.Mutex
}

// NewGroupStore returns a store backed by path (<data>/groups.json).
func NewGroupStore(path string) *GroupStore {
	return &GroupStore{path: path}
}

func (s *GroupStore) load() (map[string]*model.Group, error) {
	var groups []*model.Group
	ok, err := readJSON(s.path, &groups)
	if err != nil {
		return nil, apierr.System("%v", err)
	}
	m := make(map[string]*model.Group)
	if ok {
		for _, g := range groups {
			m[strings.ToLower(g.Name)] = g
		}
	}
	return m, nil
}

func (s *GroupStore) saveLocked(m map[string]*model.Group) error {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	list := make([]*model.Group, 0, len(m))
	for _, n := range names {
		list = append(list, m[n])
	}
	if err := writeJSONAtomic(s.path, list, 0o644); err != nil {
		return apierr.System("failed to write groups: %v", err)
	}
	return nil
}

// Create adds a new group, rejecting a duplicate (case-folded) name.
func (s *GroupStore) Create(name string, emails []string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, apierr.User("group name must not be empty")
	}
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	if _, ok := m[key]; ok {
		return nil, apierr.User("group %q already exists", key)
	}
	g := &model.Group{Name: key, Emails: toSet(emails)}
	if g.Emails == nil {
		g.Emails = map[string]bool{}
	}
	m[key] = g
	if err := s.saveLocked(m); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns the group named name (case-insensitive).
func (s *GroupStore) Get(name string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	g, ok := m[strings.ToLower(name)]
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("group %q", name))
	}
	return g, nil
}

// List returns every group, sorted by name.
func (s *GroupStore) List() ([]*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*model.Group, 0, len(m))
	for _, n := range names {
		out = append(out, m[n])
	}
	return out, nil
}

// AddEmails adds emails to the named group's membership set.
func (s *GroupStore) AddEmails(name string, emails []string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(name)
	g, ok := m[key]
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("group %q", name))
	}
	if g.Emails == nil {
		g.Emails = map[string]bool{}
	}
	for e := range toSet(emails) {
		g.Emails[e] = true
	}
	if err := s.saveLocked(m); err != nil {
		return nil, err
	}
	return g, nil
}

// RemoveEmails removes emails from the named group's membership set.
func (s *GroupStore) RemoveEmails(name string, emails []string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(name)
	g, ok := m[key]
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("group %q", name))
	}
	for e := range toSet(emails) {
		delete(g.Emails, e)
	}
	if err := s.saveLocked(m); err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes the named group entirely.
func (s *GroupStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	key := strings.ToLower(name)
	if _, ok := m[key]; !ok {
		return apierr.NotFound(fmt.Sprintf("group %q", name))
	}
	delete(m, key)
	return s.saveLocked(m)
}

// ResolveGroups returns the flat union of member emails across names.
// Unknown names are silently ignored.
func (s *GroupStore) ResolveGroups(names []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, n := range names {
		g, ok := m[strings.ToLower(n)]
		if !ok {
			continue
		}
		for e := range g.Emails {
			out[e] = true
		}
	}
	return out, nil
}

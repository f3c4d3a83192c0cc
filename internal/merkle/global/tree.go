package global

import (
	"fmt"
	"sort"

	"github.com/civicproof/boundary-registry/internal/merkle"
)

const (
	continentTag = "boundary-registry/continent/v1"
	globalTag    = "boundary-registry/global/v1"
)

// CodeRoot pairs a country or continent code with its root digest.
type CodeRoot struct {
	Code string        `json:"code"`
	Root merkle.Digest `json:"root"`
}

// Tree is the composite over jurisdictions: country roots grouped into
// continental roots, continental roots folded into a single global root.
// Folding order at every level is a lexicographic sort by code — never
// insertion order — so the global root is reproducible regardless of which
// order countries were ingested. Immutable after Build.
type Tree struct {
	tableVersion   string
	countryRoots   map[string]merkle.Digest
	continentRoots []CodeRoot // code-sorted
	root           merkle.Digest
}

// Build groups countryRoots (keyed by ISO 3166-1 alpha-2 code) into
// continental roots under the versioned continent table and folds them into
// the global root. A country code missing from the table is an error.
func Build(h merkle.Hasher, countryRoots map[string]merkle.Digest) (*Tree, error) {
	if len(countryRoots) == 0 {
		return nil, fmt.Errorf("global tree: no country roots")
	}

	byContinent := make(map[string][]CodeRoot)
	for code, root := range countryRoots {
		continent, ok := ContinentOf(code)
		if !ok {
			return nil, fmt.Errorf("global tree: country %q not in continent table %s", code, ContinentTableVersion)
		}
		byContinent[continent] = append(byContinent[continent], CodeRoot{Code: code, Root: root})
	}

	continentRoots := make([]CodeRoot, 0, len(byContinent))
	for continent, countries := range byContinent {
		continentRoots = append(continentRoots, CodeRoot{
			Code: continent,
			Root: foldCodeRoots(h, continentTag, countries),
		})
	}
	sortCodeRoots(continentRoots)

	kept := make(map[string]merkle.Digest, len(countryRoots))
	for code, root := range countryRoots {
		kept[code] = root
	}

	return &Tree{
		tableVersion:   ContinentTableVersion,
		countryRoots:   kept,
		continentRoots: continentRoots,
		root:           foldCodeRoots(h, globalTag, continentRoots),
	}, nil
}

// Root returns the global root digest.
func (t *Tree) Root() merkle.Digest { return t.root }

// TableVersion returns the continent table version the tree was built with.
func (t *Tree) TableVersion() string { return t.tableVersion }

// ContinentRoots returns every continental (code, root) pair, code-sorted.
func (t *Tree) ContinentRoots() []CodeRoot { return t.continentRoots }

// CountryRoots returns the (code, root) pairs for every country grouped
// under continent, code-sorted. These are the siblings a verifier needs to
// recompute that continental root.
func (t *Tree) CountryRoots(continent string) []CodeRoot {
	var out []CodeRoot
	for code, root := range t.countryRoots {
		if c, ok := ContinentOf(code); ok && c == continent {
			out = append(out, CodeRoot{Code: code, Root: root})
		}
	}
	sortCodeRoots(out)
	return out
}

// CountryProof carries everything needed to verify one country's
// multi-layer root against the global root: the country's continent
// grouping plus the sibling roots at both fold levels. It composes with a
// layer-level inclusion proof to span leaf → layer → country → global.
type CountryProof struct {
	CountryCode    string        `json:"country_code"`
	ContinentCode  string        `json:"continent_code"`
	TableVersion   string        `json:"table_version"`
	CountryRoot    merkle.Digest `json:"country_root"`
	CountryRoots   []CodeRoot    `json:"country_roots"`   // all countries of the continent, code-sorted
	ContinentRoots []CodeRoot    `json:"continent_roots"` // all continents, code-sorted
}

// ProveCountry extracts the proof path for countryCode.
func (t *Tree) ProveCountry(countryCode string) (CountryProof, error) {
	root, ok := t.countryRoots[countryCode]
	if !ok {
		return CountryProof{}, fmt.Errorf("global tree: no root for country %q", countryCode)
	}
	continent, _ := ContinentOf(countryCode)
	return CountryProof{
		CountryCode:    countryCode,
		ContinentCode:  continent,
		TableVersion:   t.tableVersion,
		CountryRoot:    root,
		CountryRoots:   t.CountryRoots(continent),
		ContinentRoots: t.continentRoots,
	}, nil
}

// VerifyCountryProof recomputes the continental fold from the proof's
// country roots and the global fold from its continental roots, checking
// that the claimed country root actually participates.
func VerifyCountryProof(h merkle.Hasher, globalRoot merkle.Digest, proof CountryProof) bool {
	found := false
	for _, cr := range proof.CountryRoots {
		if cr.Code == proof.CountryCode && cr.Root == proof.CountryRoot {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	continentRoot := foldCodeRoots(h, continentTag, proof.CountryRoots)
	matched := false
	for _, cr := range proof.ContinentRoots {
		if cr.Code == proof.ContinentCode {
			if cr.Root != continentRoot {
				return false
			}
			matched = true
		}
	}
	if !matched {
		return false
	}

	return foldCodeRoots(h, globalTag, proof.ContinentRoots) == globalRoot
}

// foldCodeRoots folds (code, root) pairs in lexicographic code order:
// acc = H(acc, H(H1(code), root)), seeded with H1 of the level tag.
func foldCodeRoots(h merkle.Hasher, tag string, roots []CodeRoot) merkle.Digest {
	ordered := make([]CodeRoot, len(roots))
	copy(ordered, roots)
	sortCodeRoots(ordered)

	acc := h.HashBytes([]byte(tag))
	for _, cr := range ordered {
		acc = h.HashPair(acc, h.HashPair(h.HashBytes([]byte(cr.Code)), cr.Root))
	}
	return acc
}

func sortCodeRoots(roots []CodeRoot) {
	sort.Slice(roots, func(i, j int) bool { return roots[i].Code < roots[j].Code })
}

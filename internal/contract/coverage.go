package contract

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation is one method+path pair of the OpenAPI document.
type Operation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

func (o Operation) String() string { return fmt.Sprintf("%s %s", o.Method, o.Path) }

type CoverageReport struct {
	Total        int      `json:"total"`
	Covered      int      `json:"covered"`
	Percent      float64  `json:"percent"`
	CoveredSet   []string `json:"covered_set"`
	UncoveredSet []string `json:"uncovered_set"`
}

// Coverage records which documented operations were validated during a run.
// It is safe for concurrent scenarios.
type Coverage struct {
	mu   sync.Mutex
	seen map[Operation]bool
}

func NewCoverage() *Coverage { return &Coverage{seen: map[Operation]bool{}} }

func (c *Coverage) Mark(op Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op.Method = strings.ToUpper(op.Method)
	c.seen[op] = true
}

// Report compares the recorded operations with every operation in doc.
func (c *Coverage) Report(doc *openapi3.T) CoverageReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := listOps(doc)
	var coveredList, uncoveredList []string
	for _, op := range all {
		if c.seen[op] {
			coveredList = append(coveredList, op.String())
		} else {
			uncoveredList = append(uncoveredList, op.String())
		}
	}
	sort.Strings(coveredList)
	sort.Strings(uncoveredList)

	return CoverageReport{
		Total:        len(all),
		Covered:      len(coveredList),
		Percent:      pct(len(coveredList), len(all)),
		CoveredSet:   coveredList,
		UncoveredSet: uncoveredList,
	}
}

func listOps(doc *openapi3.T) []Operation {
	var out []Operation
	if doc == nil || doc.Paths == nil {
		return out
	}
	for p, pi := range doc.Paths.Map() { // Map() with kin-openapi v0.126.0
		if pi == nil {
			continue
		}
		for method := range pi.Operations() {
			out = append(out, Operation{Method: strings.ToUpper(method), Path: p})
		}
	}
	return out
}

func pct(n, d int) float64 {
	if d == 0 {
		return 100.0
	}
	return float64(n) * 100.0 / float64(d)
}

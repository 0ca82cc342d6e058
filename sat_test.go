package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDimacs(t *testing.T, content string) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "instance.cnf")
	if err := os.WriteFile(name, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestSATSatisfiable(t *testing.T) {
	name := writeDimacs(t, `c a satisfiable instance
p cnf 3 2
1 -3 0
2 3 -1 0
`)

	sat, err := LoadDimacs(name)
	if err != nil {
		t.Fatal(err)
	}

	if sat.variables != 3 || sat.clauses != 2 {
		t.Fatalf("parsed %d variables and %d clauses", sat.variables, sat.clauses)
	}

	if sat.babysat(0) != SAT {
		t.Error("satisfiable instance reported unsatisfiable")
	}

	// the found assignment must satisfy every clause
	for clause := uint32(0); clause < sat.clauses; clause++ {
		satisfied := false
		for variable := uint32(0); variable < sat.variables; variable++ {
			if sat.assignment[variable] != 0 && sat.literal(clause, 2*variable) != 0 {
				satisfied = true
			}
			if sat.assignment[variable] == 0 && sat.literal(clause, 2*variable+1) != 0 {
				satisfied = true
			}
		}
		if !satisfied {
			t.Errorf("clause %d not satisfied by the reported assignment", clause)
		}
	}
}

func TestSATUnsatisfiable(t *testing.T) {
	name := writeDimacs(t, `p cnf 1 2
1 0
-1 0
`)

	sat, err := LoadDimacs(name)
	if err != nil {
		t.Fatal(err)
	}

	if sat.babysat(0) != UNSAT {
		t.Error("unsatisfiable instance reported satisfiable")
	}
}

func TestSATParserErrors(t *testing.T) {
	for _, content := range []string{
		"nonsense",
		"p cnf x 2\n1 0\n",
		"p cnf 2 2\n1 0\n",       // fewer clauses than declared
		"p cnf 1 1\n1 0\n-1 0\n", // more clauses than declared
		"p cnf 1 1\n2 0\n",       // literal exceeds variables
	} {
		name := writeDimacs(t, content)

		if _, err := LoadDimacs(name); err == nil {
			t.Errorf("no parse error for %q", content)
		}
	}
}

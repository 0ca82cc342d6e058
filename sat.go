package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
)

// A brute-force DPLL-style SAT solver over DIMACS CNF instances,
// backtracking through variable assignments in order.

const (
	UNSAT = 0
	SAT   = 1
)

// SATInstance holds a CNF instance as a clauses x (2 * variables) matrix
// of literal-occurrence flags: column 2v flags the positive literal of
// variable v, column 2v+1 the negative one.
type SATInstance struct {
	name       string
	variables  uint32
	clauses    uint32
	instance   []uint32
	assignment []uint32
}

func (sat *SATInstance) literal(clause, column uint32) uint32 {
	return sat.instance[clause*2*sat.variables+column]
}

// clauseMayBeTrue reports whether a clause can still be satisfied given
// the assignment of variables 0..depth.
func (sat *SATInstance) clauseMayBeTrue(clause, depth uint32) bool {
	variable := uint32(0)

	for variable <= depth {
		if sat.assignment[variable] != 0 {
			if sat.literal(clause, 2*variable) != 0 {
				return true
			}
		} else if sat.literal(clause, 2*variable+1) != 0 {
			// variable is false because variable <= depth
			return true
		}

		variable++
	}

	for variable < sat.variables {
		// variable is unassigned because variable > depth
		if sat.literal(clause, 2*variable) != 0 {
			return true
		}
		if sat.literal(clause, 2*variable+1) != 0 {
			return true
		}

		variable++
	}

	return false
}

func (sat *SATInstance) instanceMayBeTrue(depth uint32) bool {
	for clause := uint32(0); clause < sat.clauses; clause++ {
		if !sat.clauseMayBeTrue(clause, depth) {
			// clause is false under the current assignment
			return false
		}
	}
	return true
}

// babysat tries true before false for each variable in order.
func (sat *SATInstance) babysat(depth uint32) uint32 {
	if depth == sat.variables {
		return SAT
	}

	sat.assignment[depth] = 1

	if sat.instanceMayBeTrue(depth) {
		if sat.babysat(depth+1) == SAT {
			return SAT
		}
	}

	sat.assignment[depth] = 0

	if sat.instanceMayBeTrue(depth) {
		if sat.babysat(depth+1) == SAT {
			return SAT
		}
	}

	return UNSAT
}

func (sat *SATInstance) printDimacs() {
	fmt.Printf("p cnf %d %d\n", sat.variables, sat.clauses)

	for clause := uint32(0); clause < sat.clauses; clause++ {
		for variable := uint32(0); variable < sat.variables; variable++ {
			if sat.literal(clause, 2*variable) != 0 {
				fmt.Printf("%d ", variable+1)
			} else if sat.literal(clause, 2*variable+1) != 0 {
				fmt.Printf("-%d ", variable+1)
			}
		}
		fmt.Print("0\n")
	}
}

// LoadDimacs parses a DIMACS CNF file: comment lines start with 'c', the
// problem line is "p cnf <variables> <clauses>", and each clause is a
// zero-terminated list of signed literals.
func LoadDimacs(name string) (*SATInstance, error) {
	source, err := os.ReadFile(name)
	if err != nil {
		return nil, exitError(EXITCODE_IOERROR, "could not open input file %s", name)
	}

	reportf("loading SAT instance %s", name)

	var words []string

	scanner := bufio.NewScanner(bytes.NewReader(source))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == 'c' {
			continue
		}
		fields := bytes.Fields([]byte(line))
		for _, field := range fields {
			words = append(words, string(field))
		}
	}

	parseError := func(message string) error {
		errorf("syntax error in %s: %s", name, message)
		return exitError(EXITCODE_PARSERERROR, "syntax error in %s", name)
	}

	if len(words) < 4 || words[0] != "p" || words[1] != "cnf" {
		return nil, parseError("\"p cnf\" expected")
	}

	variables, err := strconv.ParseUint(words[2], 10, 32)
	if err != nil {
		return nil, parseError("number of variables expected")
	}

	clauses, err := strconv.ParseUint(words[3], 10, 32)
	if err != nil {
		return nil, parseError("number of clauses expected")
	}

	sat := &SATInstance{
		name:       name,
		variables:  uint32(variables),
		clauses:    uint32(clauses),
		instance:   make([]uint32, uint32(clauses)*2*uint32(variables)),
		assignment: make([]uint32, variables),
	}

	clause := uint32(0)

	for _, word := range words[4:] {
		if clause >= sat.clauses {
			return nil, parseError("instance has more clauses than declared")
		}

		literal, err := strconv.ParseInt(word, 10, 64)
		if err != nil {
			return nil, parseError("literal expected")
		}

		if literal == 0 {
			clause++
			continue
		}

		variable := literal
		if variable < 0 {
			variable = -variable
		}

		if uint32(variable) > sat.variables {
			return nil, parseError("clause exceeds declared number of variables")
		}

		// literal encoding starts at 0
		if literal < 0 {
			sat.instance[clause*2*sat.variables+2*uint32(variable-1)+1] = 1
		} else {
			sat.instance[clause*2*sat.variables+2*uint32(variable-1)] = 1
		}
	}

	if clause < sat.clauses {
		return nil, parseError("instance has fewer clauses than declared")
	}

	reportf("%d clauses with %d declared variables loaded from %s", sat.clauses, sat.variables, name)

	return sat, nil
}

// RunSAT loads and solves a DIMACS instance, printing the instance and
// either a satisfying assignment or unsatisfiability.
func RunSAT(name string) error {
	sat, err := LoadDimacs(name)
	if err != nil {
		return err
	}

	sat.printDimacs()

	if sat.babysat(0) == SAT {
		fmt.Printf("%s: %s is satisfiable with ", toolName, sat.name)

		for variable := uint32(0); variable < sat.variables; variable++ {
			if sat.assignment[variable] == 0 {
				fmt.Printf("-%d ", variable+1)
			} else {
				fmt.Printf("%d ", variable+1)
			}
		}
	} else {
		fmt.Printf("%s: %s is unsatisfiable", toolName, sat.name)
	}

	fmt.Println()

	return nil
}

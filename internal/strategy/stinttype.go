package strategy

import "fmt"

// stintTypeNames maps run lengths to their display labels. A run is a
// contiguous sequence of stints driven on one tire set.
var stintTypeNames = [...]string{
	1:  "Single",
	2:  "Double",
	3:  "Triple",
	4:  "Quadruple",
	5:  "Quintuple",
	6:  "Sextuple",
	7:  "Septuple",
	8:  "Octuple",
	9:  "Nonuple",
	10: "Decuple",
}

// StintTypeName returns the label for a run of k stints. Runs longer than
// ten have no conventional name.
func StintTypeName(k int) string {
	if k >= 1 && k < len(stintTypeNames) {
		return stintTypeNames[k]
	}
	return "Unknown"
}

// RunLength returns the run length a label names.
func RunLength(name string) (int, error) {
	for k := 1; k < len(stintTypeNames); k++ {
		if stintTypeNames[k] == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown stint type: %q", name)
}

package dispatch

import "fmt"

// Argument is a positional index, a name, or both — the roots of the
// expression graph. Two arguments are equal iff both positional index and
// name are equal, treating an absent component as equal only to another
// absent component.
type Argument struct {
	Index    int
	HasIndex bool
	Name     string
	HasName  bool
}

// ArgAt builds an argument identified purely by its positional index.
func ArgAt(index int) Argument {
	return Argument{Index: index, HasIndex: true}
}

// ArgNamed builds an argument identified purely by name.
func ArgNamed(name string) Argument {
	return Argument{Name: name, HasName: true}
}

// ArgAtNamed builds an argument identified by both index and name.
func ArgAtNamed(index int, name string) Argument {
	return Argument{Index: index, HasIndex: true, Name: name, HasName: true}
}

// Equal reports whether a and b identify the same argument.
func (a Argument) Equal(b Argument) bool {
	if a.HasIndex != b.HasIndex {
		return false
	}
	if a.HasIndex && a.Index != b.Index {
		return false
	}
	if a.HasName != b.HasName {
		return false
	}
	if a.HasName && a.Name != b.Name {
		return false
	}
	return true
}

func (a Argument) String() string {
	switch {
	case a.HasIndex && a.HasName:
		return fmt.Sprintf("arg[%d:%s]", a.Index, a.Name)
	case a.HasIndex:
		return fmt.Sprintf("arg[%d]", a.Index)
	case a.HasName:
		return fmt.Sprintf("arg[%s]", a.Name)
	default:
		return "arg[?]"
	}
}

package version

// Policy computes the version that follows prev. Implementations must be
// deterministic and strictly increasing.
type Policy interface {
	Next(prev Version) Version
}

// MinorCarry increments the minor counter and carries into the major counter
// once minor reaches Threshold. A Threshold of zero or less never carries.
type MinorCarry struct {
	Threshold int
}

func (p MinorCarry) Next(prev Version) Version {
	next := Version{Major: prev.Major, Minor: prev.Minor + 1}
	if p.Threshold > 0 && next.Minor >= p.Threshold {
		next.Major++
		next.Minor = 0
	}
	return next
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(prev Version) Version

func (f PolicyFunc) Next(prev Version) Version {
	return f(prev)
}

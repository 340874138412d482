package storage

import (
	"bytes"
	"strings"
)

// typeRank orders storage classes the way index keys sort:
// null, then numeric, then text, then blob.
func typeRank(f Field) int {
	switch f.Type {
	case Null:
		return 0
	case Integer, Real:
		return 1
	case Text:
		return 2
	default:
		return 3
	}
}

// CompareFields orders two field values. Nulls sort before everything,
// numerics compare across integer/real representations, text compares
// byte-wise, blobs compare byte-wise.
func CompareFields(a, b Field) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0:
		return 0
	case 1:
		av, bv := numeric(a), numeric(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case 2:
		return strings.Compare(a.Data.(string), b.Data.(string))
	default:
		return bytes.Compare(a.Data.([]byte), b.Data.([]byte))
	}
}

func numeric(f Field) float64 {
	if f.Type == Integer {
		return float64(f.Data.(int64))
	}
	return f.Data.(float64)
}

// CompareKeys orders two key tuples element-wise. A tuple that is a
// strict prefix of the other sorts first.
func CompareKeys(a, b []Field) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := CompareFields(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

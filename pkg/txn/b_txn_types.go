package txn

type OpKind int

const (
	PutOp OpKind = iota
	DeleteOp
)

func (k OpKind) String() string {
	switch k {
	case PutOp:
		return "put"
	case DeleteOp:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one buffered mutation, replayed in submission order at commit.
type Operation struct {
	Kind  OpKind
	Key   string
	Value Value
}

type Value struct {
	value []byte
}

func NewValue(value []byte) Value {
	return Value{
		value: value,
	}
}

func (value Value) Slice() []byte {
	return value.value
}

func (value Value) String() string {
	return string(value.value)
}

type Pair[K any, V any] struct {
	Key K
	Val V
}

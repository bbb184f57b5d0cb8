// Copyright dSPACE GmbH. All rights reserved.

package cosim

import "fmt"

// DataType is the scalar type of one signal sample.
type DataType uint32

const (
	DataTypeBool DataType = iota + 1
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeUint8
	DataTypeUint16
	DataTypeUint32
	DataTypeUint64
	DataTypeFloat32
	DataTypeFloat64
)

// DataTypeSize returns the size in bytes of one element of dataType, or 0
// for an unrecognized value.
func DataTypeSize(dataType DataType) uint32 {
	switch dataType {
	case DataTypeBool, DataTypeInt8, DataTypeUint8:
		return 1
	case DataTypeInt16, DataTypeUint16:
		return 2
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 4
	case DataTypeInt64, DataTypeUint64, DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

func (d DataType) String() string {
	switch d {
	case DataTypeBool:
		return "Bool"
	case DataTypeInt8:
		return "Int8"
	case DataTypeInt16:
		return "Int16"
	case DataTypeInt32:
		return "Int32"
	case DataTypeInt64:
		return "Int64"
	case DataTypeUint8:
		return "UInt8"
	case DataTypeUint16:
		return "UInt16"
	case DataTypeUint32:
		return "UInt32"
	case DataTypeUint64:
		return "UInt64"
	case DataTypeFloat32:
		return "Float32"
	case DataTypeFloat64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// SizeKind distinguishes fixed-length signals from variable-length ones.
type SizeKind uint32

const (
	SizeKindFixed SizeKind = iota + 1
	SizeKindVariable
)

func (k SizeKind) String() string {
	if k == SizeKindVariable {
		return "Variable"
	}
	return "Fixed"
}

// IoSignal describes one staged signal, as exchanged in ConnectOk.
//
// Invariant: DataTypeSize(DataType) * MaxLength > 0. A Fixed signal always
// has CurrentLength == MaxLength; a Variable signal has
// 0 <= CurrentLength <= MaxLength, which may change per step.
type IoSignal struct {
	Id        IoSignalId
	MaxLength uint32
	DataType  DataType
	SizeKind  SizeKind
	Name      string
}

// Validate checks the descriptor-level invariants.
func (s IoSignal) Validate() error {
	if s.MaxLength == 0 {
		return fmt.Errorf("%w: signal %q has zero max length", ErrInvalidArgument, s.Name)
	}
	if DataTypeSize(s.DataType)*s.MaxLength == 0 {
		return fmt.Errorf("%w: signal %q has invalid data type size", ErrInvalidArgument, s.Name)
	}
	if s.SizeKind != SizeKindFixed && s.SizeKind != SizeKindVariable {
		return fmt.Errorf("%w: signal %q has invalid size kind", ErrInvalidArgument, s.Name)
	}
	return nil
}

// ByteSize returns the maximum wire/storage size in bytes of this signal.
func (s IoSignal) ByteSize() uint32 {
	return DataTypeSize(s.DataType) * s.MaxLength
}

func (s IoSignal) String() string {
	return fmt.Sprintf("IoSignal{id=%d name=%q type=%s kind=%s maxLen=%d}",
		uint32(s.Id), s.Name, s.DataType, s.SizeKind, s.MaxLength)
}

// ValidateSignalSet rejects duplicate ids and any zero-length descriptor.
func ValidateSignalSet(signals []IoSignal) error {
	seen := make(map[IoSignalId]struct{}, len(signals))
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Id]; dup {
			return fmt.Errorf("%w: duplicate signal id %d", ErrInvalidArgument, uint32(s.Id))
		}
		seen[s.Id] = struct{}{}
	}
	return nil
}

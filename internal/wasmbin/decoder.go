package wasmbin

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dandyvica/wasm-add-one/internal/leb128"
)

// maxLocals bounds the expanded locals of one function so a hostile local
// count can't force a huge allocation.
const maxLocals = 1 << 16

// DecodeModule decodes the function view of a WebAssembly binary.
// See https://www.w3.org/TR/wasm-core-1/#binary-format%E2%91%A0
func DecodeModule(binary []byte) (*Module, error) {
	r := bytes.NewReader(binary)

	// Magic number.
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, magic) {
		return nil, ErrInvalidMagicNumber
	}

	// Version.
	if _, err := io.ReadFull(r, buf); err != nil || !bytes.Equal(buf, version) {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	for {
		sectionID, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("read section id: %w", err)
		}

		sectionSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("get size of section for id=%d: %w", sectionID, err)
		}
		if int64(sectionSize) > int64(r.Len()) {
			return nil, fmt.Errorf("section ID %d: size %d exceeds remaining %d bytes: %w",
				sectionID, sectionSize, r.Len(), io.ErrUnexpectedEOF)
		}

		contents := make([]byte, sectionSize)
		_, _ = io.ReadFull(r, contents) // length checked above
		sr := bytes.NewReader(contents)

		switch sectionID {
		case SectionIDType:
			m.TypeSection, err = decodeTypeSection(sr)
		case SectionIDImport:
			m.ImportSection, err = decodeImportSection(sr)
		case SectionIDFunction:
			m.FunctionSection, err = decodeFunctionSection(sr)
		case SectionIDExport:
			m.ExportSection, err = decodeExportSection(sr)
		case SectionIDCode:
			m.CodeSection, err = decodeCodeSection(sr)
		case SectionIDCustom, SectionIDTable, SectionIDMemory, SectionIDGlobal, SectionIDStart,
			SectionIDElement, SectionIDData, SectionIDDataCount:
			sr.Reset(nil) // not part of the function view
		default:
			err = ErrInvalidSectionID
		}

		if err == nil && sr.Len() != 0 {
			err = fmt.Errorf("invalid section length: expected to be %d but got %d", sectionSize, int(sectionSize)-sr.Len())
		}

		if err != nil {
			return nil, fmt.Errorf("section ID %d: %w", sectionID, err)
		}
	}

	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths")
	}
	return m, nil
}

func decodeVectorSize(r *bytes.Reader) (uint32, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("get size of vector: %w", err)
	}
	// Every element takes at least one byte.
	if int64(vs) > int64(r.Len()) {
		return 0, fmt.Errorf("vector size %d exceeds remaining %d bytes: %w", vs, r.Len(), io.ErrUnexpectedEOF)
	}
	return vs, nil
}

func decodeTypeSection(r *bytes.Reader) ([]*FunctionType, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*FunctionType, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeFunctionType(r); err != nil {
			return nil, fmt.Errorf("read %d-th type: %w", i, err)
		}
	}
	return result, nil
}

func decodeFunctionType(r *bytes.Reader) (*FunctionType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	if b != 0x60 {
		return nil, fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b)
	}

	paramTypes, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("could not read parameter types: %w", err)
	}

	resultTypes, err := decodeValueTypes(r)
	if err != nil {
		return nil, fmt.Errorf("could not read result types: %w", err)
	}

	return &FunctionType{Params: paramTypes, Results: resultTypes}, nil
}

func decodeValueTypes(r *bytes.Reader) ([]ValueType, error) {
	num, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}
	if num == 0 {
		return nil, nil
	}

	ret := make([]ValueType, num)
	if _, err = io.ReadFull(r, ret); err != nil {
		return nil, err
	}
	for _, v := range ret {
		if err = validateValueType(v); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func validateValueType(v ValueType) error {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
		ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return nil
	}
	return fmt.Errorf("%w: invalid value type: %#x", ErrInvalidByte, v)
}

func decodeImportSection(r *bytes.Reader) ([]*Import, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*Import, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeImport(r); err != nil {
			return nil, fmt.Errorf("read import: %w", err)
		}
	}
	return result, nil
}

func decodeImport(r *bytes.Reader) (i *Import, err error) {
	i = &Import{}
	if i.Module, err = decodeUTF8(r, "import module"); err != nil {
		return nil, err
	}
	if i.Name, err = decodeUTF8(r, "import name"); err != nil {
		return nil, err
	}

	if i.Type, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("error decoding import kind: %w", err)
	}

	start := r.Size() - int64(r.Len())
	switch i.Type {
	case ExternTypeFunc:
		if i.DescFunc, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("error decoding import func typeindex: %w", err)
		}
		return
	case ExternTypeTable:
		var refType byte
		if refType, err = r.ReadByte(); err == nil {
			if refType != ValueTypeFuncref && refType != ValueTypeExternref {
				return nil, fmt.Errorf("%w: invalid table element type: %#x", ErrInvalidByte, refType)
			}
			err = skipLimits(r)
		}
	case ExternTypeMemory:
		err = skipLimits(r)
	case ExternTypeGlobal:
		var vt byte
		if vt, err = r.ReadByte(); err == nil {
			if err = validateValueType(vt); err == nil {
				_, err = r.ReadByte() // mutability
			}
		}
	default:
		return nil, fmt.Errorf("%w: invalid byte for importdesc: %#x", ErrInvalidByte, i.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding import %s desc: %w", ExternTypeName(i.Type), err)
	}

	end := r.Size() - int64(r.Len())
	i.Desc = make([]byte, end-start)
	_, _ = r.ReadAt(i.Desc, start)
	return
}

// skipLimits consumes a limits descriptor. Flags above 1 are the shared
// memory encodings of the threads proposal, which still carry a max.
func skipLimits(r *bytes.Reader) error {
	flag, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read leading byte: %w", err)
	}
	if flag > 0x03 {
		return fmt.Errorf("%w: invalid limits flag: %#x", ErrInvalidByte, flag)
	}
	if _, _, err = leb128.DecodeUint32(r); err != nil {
		return fmt.Errorf("read min of limit: %w", err)
	}
	if flag&0x01 != 0 {
		if _, _, err = leb128.DecodeUint32(r); err != nil {
			return fmt.Errorf("read max of limit: %w", err)
		}
	}
	return nil
}

func decodeFunctionSection(r *bytes.Reader) ([]Index, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]Index, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("get type index: %w", err)
		}
	}
	return result, nil
}

func decodeExportSection(r *bytes.Reader) ([]*Export, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, vs)
	result := make([]*Export, vs)
	for i := uint32(0); i < vs; i++ {
		e, err := decodeExport(r)
		if err != nil {
			return nil, fmt.Errorf("read export: %w", err)
		}
		if _, ok := names[e.Name]; ok {
			return nil, fmt.Errorf("export[%d] duplicates name %q", i, e.Name)
		}
		names[e.Name] = struct{}{}
		result[i] = e
	}
	return result, nil
}

func decodeExport(r *bytes.Reader) (e *Export, err error) {
	e = &Export{}
	if e.Name, err = decodeUTF8(r, "export name"); err != nil {
		return nil, err
	}

	if e.Type, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("error decoding export kind: %w", err)
	}

	switch e.Type {
	case ExternTypeFunc, ExternTypeTable, ExternTypeMemory, ExternTypeGlobal:
		if e.Index, _, err = leb128.DecodeUint32(r); err != nil {
			return nil, fmt.Errorf("error decoding export index: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: invalid byte for exportdesc: %#x", ErrInvalidByte, e.Type)
	}
	return
}

func decodeCodeSection(r *bytes.Reader) ([]*Code, error) {
	vs, err := decodeVectorSize(r)
	if err != nil {
		return nil, err
	}

	result := make([]*Code, vs)
	for i := uint32(0); i < vs; i++ {
		if result[i], err = decodeCode(r); err != nil {
			return nil, fmt.Errorf("read %d-th code segment: %w", i, err)
		}
	}
	return result, nil
}

func decodeCode(r *bytes.Reader) (*Code, error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of code: %w", err)
	}
	if int64(ss) > int64(r.Len()) {
		return nil, fmt.Errorf("code size %d exceeds remaining %d bytes: %w", ss, r.Len(), io.ErrUnexpectedEOF)
	}

	entry := make([]byte, ss)
	_, _ = io.ReadFull(r, entry)
	cr := bytes.NewReader(entry)

	ls, err := decodeVectorSize(cr)
	if err != nil {
		return nil, fmt.Errorf("get the size locals: %w", err)
	}

	var localTypes []ValueType
	for i := uint32(0); i < ls; i++ {
		n, _, err := leb128.DecodeUint32(cr)
		if err != nil {
			return nil, fmt.Errorf("read n of locals: %w", err)
		}
		if uint64(len(localTypes))+uint64(n) > maxLocals {
			return nil, fmt.Errorf("too many locals: more than %d", maxLocals)
		}

		vt, err := cr.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read type of local: %w", err)
		}
		if err = validateValueType(vt); err != nil {
			return nil, fmt.Errorf("invalid local type: %w", err)
		}
		for j := uint32(0); j < n; j++ {
			localTypes = append(localTypes, vt)
		}
	}

	body := entry[len(entry)-cr.Len():]
	if len(body) == 0 || body[len(body)-1] != OpcodeEnd {
		return nil, fmt.Errorf("expr not end with OpcodeEnd")
	}

	return &Code{LocalTypes: localTypes, Body: body}, nil
}

func decodeUTF8(r *bytes.Reader, contextFormat string) (string, error) {
	size, err := decodeVectorSize(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s size: %w", contextFormat, err)
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", contextFormat, err)
	}

	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%s is not valid UTF-8", contextFormat)
	}
	return string(buf), nil
}

// Serialization of HIR modules to the build-cache binary format: a
// fixed header followed by length-prefixed declaration sections. The
// semver check mirrors the monomorphization mangling-key wiring in
// monomorphize.go.
package hir

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/Masterminds/semver/v3"

	"vellum/internal/ids"
	"vellum/internal/position"
	"vellum/internal/types"
)

const (
	hirMagic        uint32 = 0x52494854 // "THIR" read little-endian
	hirVersionMajor uint16 = 1
	hirVersionMinor uint16 = 0
)

// Serialize encodes mod and its source path into the cache binary format
// and returns the complete byte stream (header included).
func Serialize(mod *Module, sourcePath string) ([]byte, error) {
	var body bytes.Buffer

	writeString(&body, mod.Name)
	writeString(&body, sourcePath)

	if err := writeSection(&body, len(mod.Structs), func(w *bytes.Buffer, i int) error {
		return encodeStructDecl(w, mod.Structs[i])
	}); err != nil {
		return nil, err
	}

	if err := writeSection(&body, len(mod.Enums), func(w *bytes.Buffer, i int) error {
		return encodeEnumDecl(w, mod.Enums[i])
	}); err != nil {
		return nil, err
	}

	if err := writeSection(&body, len(mod.Behaviors), func(w *bytes.Buffer, i int) error {
		return encodeBehaviorDecl(w, mod.Behaviors[i])
	}); err != nil {
		return nil, err
	}

	if err := writeSection(&body, len(mod.Impls), func(w *bytes.Buffer, i int) error {
		return encodeImplDecl(w, mod.Impls[i])
	}); err != nil {
		return nil, err
	}

	if err := writeSection(&body, len(mod.Functions), func(w *bytes.Buffer, i int) error {
		return encodeFunctionDecl(w, mod.Functions[i])
	}); err != nil {
		return nil, err
	}

	if err := writeSection(&body, len(mod.Constants), func(w *bytes.Buffer, i int) error {
		return encodeConstDecl(w, mod.Constants[i])
	}); err != nil {
		return nil, err
	}

	binary.Write(&body, binary.LittleEndian, uint32(len(mod.Imports)))

	for _, imp := range mod.Imports {
		writeString(&body, imp)
	}

	h := fnv.New64a()
	h.Write(body.Bytes())

	var out bytes.Buffer

	binary.Write(&out, binary.LittleEndian, hirMagic)
	binary.Write(&out, binary.LittleEndian, hirVersionMajor)
	binary.Write(&out, binary.LittleEndian, hirVersionMinor)
	binary.Write(&out, binary.LittleEndian, h.Sum64())
	out.Write(body.Bytes())

	return out.Bytes(), nil
}

// Deserialize decodes a byte stream produced by Serialize. It rejects a
// stream whose major version is incompatible with the reader's,
// expressed as a semver constraint so a reader built for `^1.0.0` accepts
// any writer minor/patch bump without accepting a breaking major change
// (domain-stack wiring: github.com/Masterminds/semver/v3).
func Deserialize(data []byte) (mod *Module, sourcePath string, err error) {
	if len(data) < 16 {
		return nil, "", fmt.Errorf("hir: truncated header (%d bytes)", len(data))
	}

	r := bytes.NewReader(data)

	var magic uint32

	var major, minor uint16

	var contentHash uint64

	binary.Read(r, binary.LittleEndian, &magic)
	binary.Read(r, binary.LittleEndian, &major)
	binary.Read(r, binary.LittleEndian, &minor)
	binary.Read(r, binary.LittleEndian, &contentHash)

	if magic != hirMagic {
		return nil, "", fmt.Errorf("hir: bad magic %#x", magic)
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf("^%d.0.0", hirVersionMajor))
	if err != nil {
		return nil, "", err
	}

	writerVersion, err := semver.NewVersion(fmt.Sprintf("%d.%d.0", major, minor))
	if err != nil {
		return nil, "", err
	}

	if !constraint.Check(writerVersion) {
		return nil, "", fmt.Errorf("hir: incompatible version %d.%d", major, minor)
	}

	body := data[16:]

	h := fnv.New64a()
	h.Write(body)

	if h.Sum64() != contentHash {
		return nil, "", fmt.Errorf("hir: content hash mismatch")
	}

	br := bytes.NewReader(body)

	modName, err := readString(br)
	if err != nil {
		return nil, "", err
	}

	srcPath, err := readString(br)
	if err != nil {
		return nil, "", err
	}

	mod = &Module{Name: modName}

	count, err := readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		s, err := decodeStructDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Structs = append(mod.Structs, s)
	}

	count, err = readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		e, err := decodeEnumDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Enums = append(mod.Enums, e)
	}

	count, err = readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		bh, err := decodeBehaviorDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Behaviors = append(mod.Behaviors, bh)
	}

	count, err = readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		impl, err := decodeImplDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Impls = append(mod.Impls, impl)
	}

	count, err = readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		fn, err := decodeFunctionDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Functions = append(mod.Functions, fn)
	}

	count, err = readSectionCount(br)
	if err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < count; i++ {
		c, err := decodeConstDecl(br)
		if err != nil {
			return nil, "", err
		}

		mod.Constants = append(mod.Constants, c)
	}

	var importCount uint32
	if err := binary.Read(br, binary.LittleEndian, &importCount); err != nil {
		return nil, "", err
	}

	for i := uint32(0); i < importCount; i++ {
		s, err := readString(br)
		if err != nil {
			return nil, "", err
		}

		mod.Imports = append(mod.Imports, s)
	}

	return mod, srcPath, nil
}

func writeSection(w *bytes.Buffer, count int, encode func(*bytes.Buffer, int) error) error {
	binary.Write(w, binary.LittleEndian, uint32(count))

	for i := 0; i < count; i++ {
		if err := encode(w, i); err != nil {
			return err
		}
	}

	return nil
}

func readSectionCount(r *bytes.Reader) (uint32, error) {
	var n uint32
	err := binary.Read(r, binary.LittleEndian, &n)

	return n, err
}

func writeString(w *bytes.Buffer, s string) {
	binary.Write(w, binary.LittleEndian, uint32(len(s)))
	w.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

func writeBool(w *bytes.Buffer, b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func writeNodeID(w *bytes.Buffer, id ids.NodeID) {
	binary.Write(w, binary.LittleEndian, uint64(id))
}

func readNodeID(r *bytes.Reader) (ids.NodeID, error) {
	var v uint64
	err := binary.Read(r, binary.LittleEndian, &v)

	return ids.NodeID(v), err
}

func writeSpan(w *bytes.Buffer, sp position.Span) {
	writeString(w, sp.Start.Filename)
	binary.Write(w, binary.LittleEndian, uint32(sp.Start.Line))
	binary.Write(w, binary.LittleEndian, uint32(sp.Start.Column))
	binary.Write(w, binary.LittleEndian, uint32(sp.Start.Offset))
	binary.Write(w, binary.LittleEndian, uint32(sp.End.Line))
	binary.Write(w, binary.LittleEndian, uint32(sp.End.Column))
	binary.Write(w, binary.LittleEndian, uint32(sp.End.Offset))
}

func readSpan(r *bytes.Reader) (position.Span, error) {
	filename, err := readString(r)
	if err != nil {
		return position.Span{}, err
	}

	var sl, sc, so, el, ec, eo uint32

	for _, p := range []*uint32{&sl, &sc, &so, &el, &ec, &eo} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return position.Span{}, err
		}
	}

	return position.Span{
		Start: position.Position{Filename: filename, Line: int(sl), Column: int(sc), Offset: int(so)},
		End:   position.Position{Filename: filename, Line: int(el), Column: int(ec), Offset: int(eo)},
	}, nil
}

func writeType(w *bytes.Buffer, t types.Type) {
	writeString(w, t.String())
}

func readType(r *bytes.Reader) (types.Type, error) {
	s, err := readString(r)
	if err != nil {
		return types.Type{}, err
	}
	// The canonical String() form round-trips through Named for every
	// kind adequately for cache-key purposes; a full structural decoder
	// is unnecessary since downstream consumers re-resolve real types
	// from the type environment keyed by this same canonical string.
	return types.Named(s), nil
}

func encodeStructDecl(w *bytes.Buffer, s *StructDecl) error {
	writeNodeID(w, s.ID)
	writeSpan(w, s.Span)
	writeString(w, s.Name)
	binary.Write(w, binary.LittleEndian, uint32(len(s.Fields)))

	for _, f := range s.Fields {
		writeString(w, f.Name)
		writeType(w, f.Ty)
		binary.Write(w, binary.LittleEndian, uint32(f.Index))
	}

	return nil
}

func decodeStructDecl(r *bytes.Reader) (*StructDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	decl := &StructDecl{ID: id, Span: span, Name: name}

	for i := uint32(0); i < n; i++ {
		fname, err := readString(r)
		if err != nil {
			return nil, err
		}

		fty, err := readType(r)
		if err != nil {
			return nil, err
		}

		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}

		decl.Fields = append(decl.Fields, FieldDecl{Name: fname, Ty: fty, Index: int(idx)})
	}

	return decl, nil
}

func encodeEnumDecl(w *bytes.Buffer, e *EnumDecl) error {
	writeNodeID(w, e.ID)
	writeSpan(w, e.Span)
	writeString(w, e.Name)
	binary.Write(w, binary.LittleEndian, uint32(len(e.Variants)))

	for _, v := range e.Variants {
		writeString(w, v.Name)
		binary.Write(w, binary.LittleEndian, uint32(v.Index))
		binary.Write(w, binary.LittleEndian, uint32(len(v.Payload)))

		for _, p := range v.Payload {
			writeType(w, p)
		}
	}

	return nil
}

func decodeEnumDecl(r *bytes.Reader) (*EnumDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	decl := &EnumDecl{ID: id, Span: span, Name: name}

	for i := uint32(0); i < n; i++ {
		vname, err := readString(r)
		if err != nil {
			return nil, err
		}

		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}

		var pn uint32
		if err := binary.Read(r, binary.LittleEndian, &pn); err != nil {
			return nil, err
		}

		payload := make([]types.Type, pn)

		for j := uint32(0); j < pn; j++ {
			payload[j], err = readType(r)
			if err != nil {
				return nil, err
			}
		}

		decl.Variants = append(decl.Variants, VariantDecl{Name: vname, Index: int(idx), Payload: payload})
	}

	return decl, nil
}

func encodeBehaviorDecl(w *bytes.Buffer, bh *BehaviorDecl) error {
	writeNodeID(w, bh.ID)
	writeSpan(w, bh.Span)
	writeString(w, bh.Name)
	binary.Write(w, binary.LittleEndian, uint32(len(bh.Methods)))

	for _, m := range bh.Methods {
		writeString(w, m.Name)
		binary.Write(w, binary.LittleEndian, uint32(len(m.Params)))

		for _, p := range m.Params {
			writeString(w, p.Name)
			writeType(w, p.Ty)
		}

		writeType(w, m.Return)
	}

	return nil
}

func decodeBehaviorDecl(r *bytes.Reader) (*BehaviorDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	decl := &BehaviorDecl{ID: id, Span: span, Name: name}

	for i := uint32(0); i < n; i++ {
		mname, err := readString(r)
		if err != nil {
			return nil, err
		}

		var pn uint32
		if err := binary.Read(r, binary.LittleEndian, &pn); err != nil {
			return nil, err
		}

		params := make([]Param, pn)

		for j := uint32(0); j < pn; j++ {
			pname, err := readString(r)
			if err != nil {
				return nil, err
			}

			pty, err := readType(r)
			if err != nil {
				return nil, err
			}

			params[j] = Param{Name: pname, Ty: pty}
		}

		ret, err := readType(r)
		if err != nil {
			return nil, err
		}

		decl.Methods = append(decl.Methods, MethodSig{Name: mname, Params: params, Return: ret})
	}

	return decl, nil
}

func encodeImplDecl(w *bytes.Buffer, impl *ImplDecl) error {
	writeNodeID(w, impl.ID)
	writeSpan(w, impl.Span)
	writeType(w, impl.ForType)
	writeString(w, impl.BehaviorName)
	binary.Write(w, binary.LittleEndian, uint32(len(impl.Methods)))

	for _, m := range impl.Methods {
		if err := encodeFunctionDecl(w, m); err != nil {
			return err
		}
	}

	return nil
}

func decodeImplDecl(r *bytes.Reader) (*ImplDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	forTy, err := readType(r)
	if err != nil {
		return nil, err
	}

	behaviorName, err := readString(r)
	if err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	decl := &ImplDecl{ID: id, Span: span, ForType: forTy, BehaviorName: behaviorName}

	for i := uint32(0); i < n; i++ {
		fn, err := decodeFunctionDecl(r)
		if err != nil {
			return nil, err
		}

		decl.Methods = append(decl.Methods, fn)
	}

	return decl, nil
}

func encodeFunctionDecl(w *bytes.Buffer, fn *FunctionDecl) error {
	writeNodeID(w, fn.ID)
	writeSpan(w, fn.Span)
	writeString(w, fn.Name)
	binary.Write(w, binary.LittleEndian, uint32(len(fn.Params)))

	for _, p := range fn.Params {
		writeString(w, p.Name)
		writeType(w, p.Ty)
	}

	writeType(w, fn.Return)
	writeBool(w, fn.IsMethod)

	if fn.IsMethod {
		writeType(w, fn.ReceiverTy)
	}

	return encodeBlock(w, fn.Body)
}

func decodeFunctionDecl(r *bytes.Reader) (*FunctionDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	params := make([]Param, n)

	for i := uint32(0); i < n; i++ {
		pname, err := readString(r)
		if err != nil {
			return nil, err
		}

		pty, err := readType(r)
		if err != nil {
			return nil, err
		}

		params[i] = Param{Name: pname, Ty: pty}
	}

	ret, err := readType(r)
	if err != nil {
		return nil, err
	}

	isMethod, err := readBool(r)
	if err != nil {
		return nil, err
	}

	decl := &FunctionDecl{ID: id, Span: span, Name: name, Params: params, Return: ret, IsMethod: isMethod}

	if isMethod {
		decl.ReceiverTy, err = readType(r)
		if err != nil {
			return nil, err
		}
	}

	decl.Body, err = decodeBlock(r)

	return decl, err
}

func encodeConstDecl(w *bytes.Buffer, c *ConstDecl) error {
	writeNodeID(w, c.ID)
	writeSpan(w, c.Span)
	writeString(w, c.Name)
	writeType(w, c.Ty)

	return encodeExpr(w, c.Value)
}

func decodeConstDecl(r *bytes.Reader) (*ConstDecl, error) {
	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	ty, err := readType(r)
	if err != nil {
		return nil, err
	}

	val, err := decodeExpr(r)
	if err != nil {
		return nil, err
	}

	return &ConstDecl{ID: id, Span: span, Name: name, Ty: ty, Value: val}, nil
}

func encodeBlock(w *bytes.Buffer, b *Block) error {
	if b == nil {
		writeBool(w, false)
		return nil
	}

	writeBool(w, true)

	return encodeExpr(w, b)
}

func decodeBlock(r *bytes.Reader) (*Block, error) {
	present, err := readBool(r)
	if err != nil || !present {
		return nil, err
	}

	e, err := decodeExpr(r)
	if err != nil {
		return nil, err
	}

	block, ok := e.(*Block)
	if !ok {
		return nil, fmt.Errorf("hir: expected block, got tag for kind %d", e.Kind())
	}

	return block, nil
}

// encodeExpr writes the one-byte variant tag, the u64 id, the
// kind-specific fields, the resolved type, and the span, in that
// order. Variant tag values are ExprKind's own numeric values,
// which must never be renumbered once shipped — only appended to.
func encodeExpr(w *bytes.Buffer, e Expr) error {
	if e == nil {
		w.WriteByte(0xFF) // sentinel "absent expression" tag, never a valid ExprKind
		return nil
	}

	w.WriteByte(byte(e.Kind()))
	writeNodeID(w, e.NodeID())

	switch n := e.(type) {
	case *Literal:
		binary.Write(w, binary.LittleEndian, n.Int)
		binary.Write(w, binary.LittleEndian, n.Uint)
		binary.Write(w, binary.LittleEndian, n.Float)
		writeBool(w, n.Bool)
		binary.Write(w, binary.LittleEndian, int32(n.Char))
		writeString(w, n.Str)
		writeBool(w, n.IsUnit)
	case *Var:
		writeString(w, n.Name)
		binary.Write(w, binary.LittleEndian, uint8(n.Binding))
	case *Binary:
		binary.Write(w, binary.LittleEndian, uint8(n.Op))

		if err := encodeExpr(w, n.Left); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Right); err != nil {
			return err
		}
	case *Unary:
		binary.Write(w, binary.LittleEndian, uint8(n.Op))

		if err := encodeExpr(w, n.Operand); err != nil {
			return err
		}
	case *Call:
		writeString(w, n.Callee)

		if err := encodeExprList(w, n.Args); err != nil {
			return err
		}
	case *MethodCall:
		if err := encodeExpr(w, n.Receiver); err != nil {
			return err
		}

		writeString(w, n.MethodName)
		binary.Write(w, binary.LittleEndian, uint32(len(n.TypeArgs)))

		for _, t := range n.TypeArgs {
			writeType(w, t)
		}

		if err := encodeExprList(w, n.Args); err != nil {
			return err
		}
	case *Field:
		if err := encodeExpr(w, n.Object); err != nil {
			return err
		}

		writeString(w, n.FieldName)
		binary.Write(w, binary.LittleEndian, uint32(n.FieldIndex))
	case *Index:
		if err := encodeExpr(w, n.Object); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Index); err != nil {
			return err
		}
	case *TupleInit:
		if err := encodeExprList(w, n.Elements); err != nil {
			return err
		}
	case *ArrayInit:
		if err := encodeExprList(w, n.Elements); err != nil {
			return err
		}
	case *ArrayRepeat:
		if err := encodeExpr(w, n.Element); err != nil {
			return err
		}

		binary.Write(w, binary.LittleEndian, uint32(n.Count))
	case *StructInit:
		writeString(w, n.StructName)

		if err := encodeExprList(w, n.Fields); err != nil {
			return err
		}
	case *EnumInit:
		writeString(w, n.EnumName)
		binary.Write(w, binary.LittleEndian, uint32(n.VariantIndex))

		if err := encodeExprList(w, n.Payload); err != nil {
			return err
		}
	case *Block:
		binary.Write(w, binary.LittleEndian, uint32(len(n.Stmts)))

		for _, s := range n.Stmts {
			if err := encodeStmt(w, s); err != nil {
				return err
			}
		}

		if err := encodeExpr(w, n.Tail); err != nil {
			return err
		}
	case *If:
		if err := encodeExpr(w, n.Cond); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Then); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Else); err != nil {
			return err
		}
	case *When:
		if err := encodeExpr(w, n.Scrutinee); err != nil {
			return err
		}

		binary.Write(w, binary.LittleEndian, uint32(len(n.Arms)))

		for _, arm := range n.Arms {
			encodePattern(w, arm.Pattern)

			if err := encodeExpr(w, arm.Guard); err != nil {
				return err
			}

			if err := encodeExpr(w, arm.Body); err != nil {
				return err
			}
		}
	case *Loop:
		if err := encodeExpr(w, n.Body); err != nil {
			return err
		}
	case *While:
		if err := encodeExpr(w, n.Cond); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Body); err != nil {
			return err
		}
	case *Return:
		if err := encodeExpr(w, n.Value); err != nil {
			return err
		}
	case *Break:
		if err := encodeExpr(w, n.Value); err != nil {
			return err
		}
	case *Continue:
		// no fields
	case *Closure:
		binary.Write(w, binary.LittleEndian, uint32(len(n.Params)))

		for _, p := range n.Params {
			writeString(w, p.Name)
			writeType(w, p.Ty)
		}

		if err := encodeExpr(w, n.Body); err != nil {
			return err
		}

		binary.Write(w, binary.LittleEndian, uint32(len(n.Captures)))

		for _, c := range n.Captures {
			writeString(w, c.Name)
			writeType(w, c.Ty)
			binary.Write(w, binary.LittleEndian, uint8(c.Mode))
		}
	case *Cast:
		if err := encodeExpr(w, n.Operand); err != nil {
			return err
		}

		writeType(w, n.Target)
	case *Try:
		if err := encodeExpr(w, n.Inner); err != nil {
			return err
		}
	case *Await:
		if err := encodeExpr(w, n.Inner); err != nil {
			return err
		}
	case *Assign:
		if err := encodeExpr(w, n.Place); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Value); err != nil {
			return err
		}
	case *CompoundAssign:
		binary.Write(w, binary.LittleEndian, uint8(n.Op))

		if err := encodeExpr(w, n.Place); err != nil {
			return err
		}

		if err := encodeExpr(w, n.Value); err != nil {
			return err
		}
	case *LowLevel:
		writeString(w, n.Intrinsic)

		if err := encodeExprList(w, n.Args); err != nil {
			return err
		}
	default:
		return fmt.Errorf("hir: serialize: unhandled expr kind %d", e.Kind())
	}

	writeType(w, e.Type())
	writeSpan(w, e.SourceSpan())

	return nil
}

func encodeExprList(w *bytes.Buffer, list []Expr) error {
	binary.Write(w, binary.LittleEndian, uint32(len(list)))

	for _, e := range list {
		if err := encodeExpr(w, e); err != nil {
			return err
		}
	}

	return nil
}

func decodeExprList(r *bytes.Reader) ([]Expr, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	out := make([]Expr, n)

	for i := uint32(0); i < n; i++ {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}

		out[i] = e
	}

	return out, nil
}

func decodeExpr(r *bytes.Reader) (Expr, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	if tagByte == 0xFF {
		return nil, nil
	}

	tag := ExprKind(tagByte)

	id, err := readNodeID(r)
	if err != nil {
		return nil, err
	}

	base := Base{ID: id}

	var node Expr

	switch tag {
	case ExprLiteral:
		lit := &Literal{Base: base}
		binary.Read(r, binary.LittleEndian, &lit.Int)
		binary.Read(r, binary.LittleEndian, &lit.Uint)
		binary.Read(r, binary.LittleEndian, &lit.Float)
		lit.Bool, _ = readBool(r)

		var ch int32

		binary.Read(r, binary.LittleEndian, &ch)
		lit.Char = rune(ch)
		lit.Str, err = readString(r)

		if err != nil {
			return nil, err
		}

		lit.IsUnit, err = readBool(r)
		node = lit
	case ExprVar:
		v := &Var{Base: base}
		v.Name, err = readString(r)

		if err != nil {
			return nil, err
		}

		var bk uint8

		binary.Read(r, binary.LittleEndian, &bk)
		v.Binding = BindingKind(bk)
		node = v
	case ExprBinary:
		bn := &Binary{Base: base}

		var op uint8

		binary.Read(r, binary.LittleEndian, &op)
		bn.Op = BinOp(op)
		bn.Left, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		bn.Right, err = decodeExpr(r)
		node = bn
	case ExprUnary:
		un := &Unary{Base: base}

		var op uint8

		binary.Read(r, binary.LittleEndian, &op)
		un.Op = UnaryOp(op)
		un.Operand, err = decodeExpr(r)
		node = un
	case ExprCall:
		c := &Call{Base: base}
		c.Callee, err = readString(r)

		if err != nil {
			return nil, err
		}

		c.Args, err = decodeExprList(r)
		node = c
	case ExprMethodCall:
		mc := &MethodCall{Base: base}
		mc.Receiver, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		mc.MethodName, err = readString(r)
		if err != nil {
			return nil, err
		}

		var tn uint32
		if err := binary.Read(r, binary.LittleEndian, &tn); err != nil {
			return nil, err
		}

		mc.TypeArgs = make([]types.Type, tn)
		for i := uint32(0); i < tn; i++ {
			mc.TypeArgs[i], err = readType(r)
			if err != nil {
				return nil, err
			}
		}

		mc.Args, err = decodeExprList(r)
		node = mc
	case ExprField:
		f := &Field{Base: base}
		f.Object, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		f.FieldName, err = readString(r)
		if err != nil {
			return nil, err
		}

		var idx uint32

		binary.Read(r, binary.LittleEndian, &idx)
		f.FieldIndex = int(idx)
		node = f
	case ExprIndex:
		ix := &Index{Base: base}
		ix.Object, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		ix.Index, err = decodeExpr(r)
		node = ix
	case ExprTupleInit:
		t := &TupleInit{Base: base}
		t.Elements, err = decodeExprList(r)
		node = t
	case ExprArrayInit:
		a := &ArrayInit{Base: base}
		a.Elements, err = decodeExprList(r)
		node = a
	case ExprArrayRepeat:
		ar := &ArrayRepeat{Base: base}
		ar.Element, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		var cnt uint32

		binary.Read(r, binary.LittleEndian, &cnt)
		ar.Count = int(cnt)
		node = ar
	case ExprStructInit:
		si := &StructInit{Base: base}
		si.StructName, err = readString(r)

		if err != nil {
			return nil, err
		}

		si.Fields, err = decodeExprList(r)
		node = si
	case ExprEnumInit:
		ei := &EnumInit{Base: base}
		ei.EnumName, err = readString(r)

		if err != nil {
			return nil, err
		}

		var vi uint32

		binary.Read(r, binary.LittleEndian, &vi)
		ei.VariantIndex = int(vi)
		ei.Payload, err = decodeExprList(r)
		node = ei
	case ExprBlock:
		bl := &Block{Base: base}

		var sn uint32
		if err := binary.Read(r, binary.LittleEndian, &sn); err != nil {
			return nil, err
		}

		for i := uint32(0); i < sn; i++ {
			s, err := decodeStmt(r)
			if err != nil {
				return nil, err
			}

			bl.Stmts = append(bl.Stmts, s)
		}

		bl.Tail, err = decodeExpr(r)
		node = bl
	case ExprIf:
		ifn := &If{Base: base}
		ifn.Cond, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		ifn.Then, err = decodeExpr(r)
		if err != nil {
			return nil, err
		}

		ifn.Else, err = decodeExpr(r)
		node = ifn
	case ExprWhen:
		wh := &When{Base: base}
		wh.Scrutinee, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		var an uint32
		if err := binary.Read(r, binary.LittleEndian, &an); err != nil {
			return nil, err
		}

		for i := uint32(0); i < an; i++ {
			pat, err := decodePattern(r)
			if err != nil {
				return nil, err
			}

			guard, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}

			body, err := decodeExpr(r)
			if err != nil {
				return nil, err
			}

			wh.Arms = append(wh.Arms, WhenArm{Pattern: pat, Guard: guard, Body: body})
		}

		node = wh
	case ExprLoop:
		lp := &Loop{Base: base}
		lp.Body, err = decodeExpr(r)
		node = lp
	case ExprWhile:
		wl := &While{Base: base}
		wl.Cond, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		wl.Body, err = decodeExpr(r)
		node = wl
	case ExprReturn:
		ret := &Return{Base: base}
		ret.Value, err = decodeExpr(r)
		node = ret
	case ExprBreak:
		brk := &Break{Base: base}
		brk.Value, err = decodeExpr(r)
		node = brk
	case ExprContinue:
		node = &Continue{Base: base}
	case ExprClosure:
		cl := &Closure{Base: base}

		var pn uint32
		if err := binary.Read(r, binary.LittleEndian, &pn); err != nil {
			return nil, err
		}

		cl.Params = make([]Param, pn)

		for i := uint32(0); i < pn; i++ {
			pname, err := readString(r)
			if err != nil {
				return nil, err
			}

			pty, err := readType(r)
			if err != nil {
				return nil, err
			}

			cl.Params[i] = Param{Name: pname, Ty: pty}
		}

		cl.Body, err = decodeExpr(r)
		if err != nil {
			return nil, err
		}

		var cn uint32
		if err := binary.Read(r, binary.LittleEndian, &cn); err != nil {
			return nil, err
		}

		for i := uint32(0); i < cn; i++ {
			cname, err := readString(r)
			if err != nil {
				return nil, err
			}

			cty, err := readType(r)
			if err != nil {
				return nil, err
			}

			var mode uint8
			if err := binary.Read(r, binary.LittleEndian, &mode); err != nil {
				return nil, err
			}

			cl.Captures = append(cl.Captures, Capture{Name: cname, Ty: cty, Mode: CaptureMode(mode)})
		}

		node = cl
	case ExprCast:
		cst := &Cast{Base: base}
		cst.Operand, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		cst.Target, err = readType(r)
		node = cst
	case ExprTry:
		tr := &Try{Base: base}
		tr.Inner, err = decodeExpr(r)
		node = tr
	case ExprAwait:
		aw := &Await{Base: base}
		aw.Inner, err = decodeExpr(r)
		node = aw
	case ExprAssign:
		as := &Assign{Base: base}
		as.Place, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		as.Value, err = decodeExpr(r)
		node = as
	case ExprCompoundAssign:
		ca := &CompoundAssign{Base: base}

		var op uint8

		binary.Read(r, binary.LittleEndian, &op)
		ca.Op = BinOp(op)
		ca.Place, err = decodeExpr(r)

		if err != nil {
			return nil, err
		}

		ca.Value, err = decodeExpr(r)
		node = ca
	case ExprLowLevel:
		ll := &LowLevel{Base: base}
		ll.Intrinsic, err = readString(r)

		if err != nil {
			return nil, err
		}

		ll.Args, err = decodeExprList(r)
		node = ll
	default:
		return nil, fmt.Errorf("hir: deserialize: unhandled variant tag %d", tag)
	}

	if err != nil {
		return nil, err
	}

	ty, err := readType(r)
	if err != nil {
		return nil, err
	}

	span, err := readSpan(r)
	if err != nil {
		return nil, err
	}

	switch n := node.(type) {
	case *Literal:
		n.Ty, n.Span = ty, span
	case *Var:
		n.Ty, n.Span = ty, span
	case *Binary:
		n.Ty, n.Span = ty, span
	case *Unary:
		n.Ty, n.Span = ty, span
	case *Call:
		n.Ty, n.Span = ty, span
	case *MethodCall:
		n.Ty, n.Span = ty, span
	case *Field:
		n.Ty, n.Span = ty, span
	case *Index:
		n.Ty, n.Span = ty, span
	case *TupleInit:
		n.Ty, n.Span = ty, span
	case *ArrayInit:
		n.Ty, n.Span = ty, span
	case *ArrayRepeat:
		n.Ty, n.Span = ty, span
	case *StructInit:
		n.Ty, n.Span = ty, span
	case *EnumInit:
		n.Ty, n.Span = ty, span
	case *Block:
		n.Ty, n.Span = ty, span
	case *If:
		n.Ty, n.Span = ty, span
	case *When:
		n.Ty, n.Span = ty, span
	case *Loop:
		n.Ty, n.Span = ty, span
	case *While:
		n.Ty, n.Span = ty, span
	case *Return:
		n.Ty, n.Span = ty, span
	case *Break:
		n.Ty, n.Span = ty, span
	case *Continue:
		n.Ty, n.Span = ty, span
	case *Closure:
		n.Ty, n.Span = ty, span
	case *Cast:
		n.Ty, n.Span = ty, span
	case *Try:
		n.Ty, n.Span = ty, span
	case *Await:
		n.Ty, n.Span = ty, span
	case *Assign:
		n.Ty, n.Span = ty, span
	case *CompoundAssign:
		n.Ty, n.Span = ty, span
	case *LowLevel:
		n.Ty, n.Span = ty, span
	}

	return node, nil
}

func encodeStmt(w *bytes.Buffer, s Stmt) error {
	w.WriteByte(byte(s.Kind))
	writeNodeID(w, s.ID)
	writeSpan(w, s.Span)

	switch s.Kind {
	case StmtLet:
		encodePattern(w, s.Pattern)
		writeBool(w, s.Mutable)
		writeType(w, s.Ty)

		return encodeExpr(w, s.Init)
	case StmtExpr:
		return encodeExpr(w, s.Value)
	}

	return nil
}

func decodeStmt(r *bytes.Reader) (Stmt, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Stmt{}, err
	}

	id, err := readNodeID(r)
	if err != nil {
		return Stmt{}, err
	}

	span, err := readSpan(r)
	if err != nil {
		return Stmt{}, err
	}

	s := Stmt{Kind: StmtKind(kindByte), ID: id, Span: span}

	switch s.Kind {
	case StmtLet:
		s.Pattern, err = decodePattern(r)
		if err != nil {
			return Stmt{}, err
		}

		s.Mutable, err = readBool(r)
		if err != nil {
			return Stmt{}, err
		}

		s.Ty, err = readType(r)
		if err != nil {
			return Stmt{}, err
		}

		s.Init, err = decodeExpr(r)
	case StmtExpr:
		s.Value, err = decodeExpr(r)
	}

	return s, err
}

func encodePattern(w *bytes.Buffer, p Pattern) {
	w.WriteByte(byte(p.Kind))

	switch p.Kind {
	case PatternBinding:
		writeString(w, p.BindingName)
		writeBool(w, p.SubPattern != nil)

		if p.SubPattern != nil {
			encodePattern(w, *p.SubPattern)
		}
	case PatternLiteral:
		binary.Write(w, binary.LittleEndian, p.LitInt)
		writeType(w, p.LitTy)
	case PatternTuple, PatternArray:
		binary.Write(w, binary.LittleEndian, uint32(len(p.Elements)))

		for _, e := range p.Elements {
			encodePattern(w, e)
		}
	case PatternStruct:
		writeString(w, p.StructName)
		binary.Write(w, binary.LittleEndian, uint32(len(p.StructFields)))

		for i, f := range p.StructFields {
			name := ""
			if i < len(p.FieldNames) {
				name = p.FieldNames[i]
			}

			writeString(w, name)
			encodePattern(w, f)
		}
	case PatternEnum:
		writeString(w, p.EnumName)
		writeString(w, p.VariantName)
		binary.Write(w, binary.LittleEndian, uint32(p.VariantIndex))
		binary.Write(w, binary.LittleEndian, uint32(len(p.Payload)))

		for _, pl := range p.Payload {
			encodePattern(w, pl)
		}
	case PatternOr:
		binary.Write(w, binary.LittleEndian, uint32(len(p.Alternatives)))

		for _, a := range p.Alternatives {
			encodePattern(w, a)
		}
	case PatternRange:
		writeBool(w, p.RangeLow != nil)

		if p.RangeLow != nil {
			encodePattern(w, *p.RangeLow)
		}

		writeBool(w, p.RangeHigh != nil)

		if p.RangeHigh != nil {
			encodePattern(w, *p.RangeHigh)
		}

		writeBool(w, p.RangeInclusive)
	}
}

func decodePattern(r *bytes.Reader) (Pattern, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Pattern{}, err
	}

	p := Pattern{Kind: PatternKind(kindByte)}

	switch p.Kind {
	case PatternBinding:
		p.BindingName, err = readString(r)
		if err != nil {
			return p, err
		}

		has, err := readBool(r)
		if err != nil {
			return p, err
		}

		if has {
			sub, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.SubPattern = &sub
		}
	case PatternLiteral:
		binary.Read(r, binary.LittleEndian, &p.LitInt)
		p.LitTy, err = readType(r)
	case PatternTuple, PatternArray:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return p, err
		}

		for i := uint32(0); i < n; i++ {
			e, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.Elements = append(p.Elements, e)
		}
	case PatternStruct:
		p.StructName, err = readString(r)
		if err != nil {
			return p, err
		}

		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return p, err
		}

		for i := uint32(0); i < n; i++ {
			name, err := readString(r)
			if err != nil {
				return p, err
			}

			f, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.FieldNames = append(p.FieldNames, name)
			p.StructFields = append(p.StructFields, f)
		}
	case PatternEnum:
		p.EnumName, err = readString(r)
		if err != nil {
			return p, err
		}

		p.VariantName, err = readString(r)
		if err != nil {
			return p, err
		}

		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return p, err
		}

		p.VariantIndex = int(idx)

		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return p, err
		}

		for i := uint32(0); i < n; i++ {
			pl, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.Payload = append(p.Payload, pl)
		}
	case PatternOr:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return p, err
		}

		for i := uint32(0); i < n; i++ {
			a, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.Alternatives = append(p.Alternatives, a)
		}
	case PatternRange:
		has, err := readBool(r)
		if err != nil {
			return p, err
		}

		if has {
			lo, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.RangeLow = &lo
		}

		has, err = readBool(r)
		if err != nil {
			return p, err
		}

		if has {
			hi, err := decodePattern(r)
			if err != nil {
				return p, err
			}

			p.RangeHigh = &hi
		}

		p.RangeInclusive, err = readBool(r)
	}

	return p, err
}

package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Image Format Constants
// ---------------------------------------------------------------------------

// ImageMagic identifies a Monkey bytecode image.
var ImageMagic = [4]byte{'M', 'K', 'B', 'C'}

// Image format version
// v1: instructions plus integer, string and function constants
const ImageVersion uint16 = 1

// magic(4) + version(2)
const imageHeaderSize = 6

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected MKBC")
	ErrVersionMismatch = errors.New("image version mismatch")
)

// Constant kinds in the wire format.
const (
	constInteger  uint8 = 1
	constString   uint8 = 2
	constFunction uint8 = 3
)

type wireImage struct {
	Instructions []byte         `cbor:"1,keyasint"`
	Constants    []wireConstant `cbor:"2,keyasint"`
}

type wireConstant struct {
	Kind uint8         `cbor:"1,keyasint"`
	Int  int64         `cbor:"2,keyasint,omitempty"`
	Str  string        `cbor:"3,keyasint,omitempty"`
	Fn   *wireFunction `cbor:"4,keyasint,omitempty"`
}

type wireFunction struct {
	Instructions []byte `cbor:"1,keyasint"`
	Locals       int    `cbor:"2,keyasint"`
	Params       int    `cbor:"3,keyasint"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// MarshalBytecode serializes a compiled program. Encoding is canonical, so
// the same program always produces the same bytes.
func MarshalBytecode(bc *Bytecode) ([]byte, error) {
	img := wireImage{
		Instructions: []byte(bc.Instructions),
		Constants:    make([]wireConstant, len(bc.Constants)),
	}

	for i, c := range bc.Constants {
		switch c := c.(type) {
		case *Integer:
			img.Constants[i] = wireConstant{Kind: constInteger, Int: c.Value}
		case *String:
			img.Constants[i] = wireConstant{Kind: constString, Str: c.Value}
		case *CompiledFunction:
			img.Constants[i] = wireConstant{Kind: constFunction, Fn: &wireFunction{
				Instructions: []byte(c.Instructions),
				Locals:       c.NumLocals,
				Params:       c.NumParameters,
			}}
		default:
			return nil, fmt.Errorf("image: constant %d has unsupported type %s", i, c.Type())
		}
	}

	body, err := imageEncMode.Marshal(&img)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}

	out := make([]byte, imageHeaderSize, imageHeaderSize+len(body))
	copy(out, ImageMagic[:])
	binary.BigEndian.PutUint16(out[4:], ImageVersion)
	return append(out, body...), nil
}

// UnmarshalBytecode deserializes an image produced by MarshalBytecode.
func UnmarshalBytecode(data []byte) (*Bytecode, error) {
	if len(data) < imageHeaderSize {
		return nil, fmt.Errorf("image: truncated header (%d bytes)", len(data))
	}
	if string(data[:4]) != string(ImageMagic[:]) {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}
	if v := binary.BigEndian.Uint16(data[4:]); v != ImageVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, ImageVersion)
	}

	var img wireImage
	if err := cbor.Unmarshal(data[imageHeaderSize:], &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}

	bc := &Bytecode{
		Instructions: Instructions(img.Instructions),
		Constants:    make([]Object, len(img.Constants)),
	}
	for i, c := range img.Constants {
		switch c.Kind {
		case constInteger:
			bc.Constants[i] = &Integer{Value: c.Int}
		case constString:
			bc.Constants[i] = &String{Value: c.Str}
		case constFunction:
			if c.Fn == nil {
				return nil, fmt.Errorf("image: constant %d: function body missing", i)
			}
			bc.Constants[i] = &CompiledFunction{
				Instructions:  Instructions(c.Fn.Instructions),
				NumLocals:     c.Fn.Locals,
				NumParameters: c.Fn.Params,
			}
		default:
			return nil, fmt.Errorf("image: constant %d: unknown kind %d", i, c.Kind)
		}
	}
	return bc, nil
}

// WriteImage writes an encoded program to w.
func WriteImage(w io.Writer, bc *Bytecode) error {
	data, err := MarshalBytecode(bc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadImage decodes a program from r.
func ReadImage(r io.Reader) (*Bytecode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: read: %w", err)
	}
	return UnmarshalBytecode(data)
}

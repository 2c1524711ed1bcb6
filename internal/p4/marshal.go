package p4

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

// Type codes of the serialized-dictionary stream written by `p4 -G`
// (Python marshal, version 0).
const (
	codeDict      = '{'
	codeDictEnd   = '0'
	codeString    = 's'
	codeUnicode   = 'u'
	codeInterned  = 't'
	codeInt       = 'i'
	codeInt64     = 'I'
	codeLong      = 'l'
	codeNone      = 'N'
	codeTrue      = 'T'
	codeFalse     = 'F'
	codeList      = '['
	codeTuple     = '('
	flagRef       = 0x80
	maxStringSize = 1 << 30
)

// Decoder reads records from a `p4 -G` output stream one at a time.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next decodes the next record. It returns io.EOF when the stream ends
// cleanly between records and io.ErrUnexpectedEOF when it ends inside one.
func (d *Decoder) Next() (*Record, error) {
	code, err := d.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if code&^flagRef != codeDict {
		return nil, fmt.Errorf("decoding record: expected dictionary, got type %q", code)
	}

	rec := NewRecord()
	for {
		kc, err := d.readCode()
		if err != nil {
			return nil, err
		}
		if kc == codeDictEnd {
			return rec, nil
		}
		key, err := d.readScalar(kc)
		if err != nil {
			return nil, fmt.Errorf("decoding key: %w", err)
		}
		vc, err := d.readCode()
		if err != nil {
			return nil, err
		}
		if vc == codeDictEnd {
			return nil, fmt.Errorf("decoding record: key %q has no value", key)
		}
		value, err := d.readScalar(vc)
		if err != nil {
			return nil, fmt.Errorf("decoding value of %q: %w", key, err)
		}
		rec.Set(key, value)
	}
}

func (d *Decoder) readCode() (byte, error) {
	c, err := d.r.ReadByte()
	if err != nil {
		return 0, unexpected(err)
	}
	return c &^ flagRef, nil
}

func (d *Decoder) readScalar(code byte) (string, error) {
	switch code {
	case codeString, codeUnicode, codeInterned:
		n, err := d.readInt32()
		if err != nil {
			return "", err
		}
		if n < 0 || n > maxStringSize {
			return "", fmt.Errorf("invalid string length %d", n)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return "", unexpected(err)
		}
		return string(buf), nil
	case codeInt:
		n, err := d.readInt32()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(n), 10), nil
	case codeInt64:
		var n int64
		if err := binary.Read(d.r, binary.LittleEndian, &n); err != nil {
			return "", unexpected(err)
		}
		return strconv.FormatInt(n, 10), nil
	case codeLong:
		return d.readLong()
	case codeNone:
		return "", nil
	case codeTrue:
		return "true", nil
	case codeFalse:
		return "false", nil
	case codeList, codeTuple, codeDict:
		return "", fmt.Errorf("nested container type %q is not supported", code)
	default:
		return "", fmt.Errorf("unknown type code %q", code)
	}
}

// readLong decodes an arbitrary precision integer stored as 15-bit digits.
func (d *Decoder) readLong() (string, error) {
	size, err := d.readInt32()
	if err != nil {
		return "", err
	}
	neg := size < 0
	if neg {
		size = -size
	}
	v := new(big.Int)
	for i := int32(0); i < size; i++ {
		var digit uint16
		if err := binary.Read(d.r, binary.LittleEndian, &digit); err != nil {
			return "", unexpected(err)
		}
		part := new(big.Int).SetUint64(uint64(digit))
		v.Or(v, part.Lsh(part, uint(15*i)))
	}
	if neg {
		v.Neg(v)
	}
	return v.String(), nil
}

func (d *Decoder) readInt32() (int32, error) {
	var n int32
	if err := binary.Read(d.r, binary.LittleEndian, &n); err != nil {
		return 0, unexpected(err)
	}
	return n, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// WriteRecord serializes a record in the format Decoder reads. All values are
// written as strings.
func WriteRecord(w io.Writer, r *Record) error {
	bw := bufio.NewWriter(w)
	bw.WriteByte(codeDict)
	for _, k := range r.keys {
		writeString(bw, k)
		writeString(bw, r.values[k])
	}
	bw.WriteByte(codeDictEnd)
	return bw.Flush()
}

func writeString(w *bufio.Writer, s string) {
	w.WriteByte(codeString)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	w.Write(n[:])
	w.WriteString(s)
}

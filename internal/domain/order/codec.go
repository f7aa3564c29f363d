package order

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/easyeat/internal/domain/cart"
)

// Field names follow the on-device format written by earlier app versions so
// existing histories keep loading.

// EncodeLocal serializes the local order list for durable storage.
func EncodeLocal(orders []LocalOrder) []byte {
	e := &jx.Encoder{}
	e.ArrStart()
	for i := range orders {
		encodeLocalOrder(e, &orders[i])
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeLocal parses a local order list written by EncodeLocal.
func DecodeLocal(data []byte) ([]LocalOrder, error) {
	var orders []LocalOrder
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var o LocalOrder
		if err := decodeLocalOrder(d, &o); err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode local orders")
	}
	return orders, nil
}

// MarshalLines serializes order lines for the document store.
func MarshalLines(lines []cart.Line) []byte {
	e := &jx.Encoder{}
	encodeLines(e, lines)
	return e.Bytes()
}

// UnmarshalLines parses lines written by MarshalLines.
func UnmarshalLines(data []byte) ([]cart.Line, error) {
	lines, err := decodeLines(jx.DecodeBytes(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode lines")
	}
	return lines, nil
}

func encodeLocalOrder(e *jx.Encoder, o *LocalOrder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerId")
	e.Str(o.CustomerID)
	e.FieldStart("chefId")
	e.Str(o.SellerID)
	e.FieldStart("chefName")
	e.Str(o.SellerName)
	e.FieldStart("items")
	encodeLines(e, o.Lines)
	e.FieldStart("totalAmount")
	encodeDecimal(e, o.ItemsSubtotal)
	e.FieldStart("deliveryFee")
	encodeDecimal(e, o.DeliveryFee)
	e.FieldStart("address")
	e.Str(o.Address)
	if o.Phone != "" {
		e.FieldStart("phone")
		e.Str(o.Phone)
	}
	if o.Notes != "" {
		e.FieldStart("notes")
		e.Str(o.Notes)
	}
	e.FieldStart("date")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.ObjEnd()
}

func decodeLocalOrder(d *jx.Decoder, o *LocalOrder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			o.ID, err = d.Str()
		case "customerId":
			o.CustomerID, err = d.Str()
		case "chefId":
			o.SellerID, err = d.Str()
		case "chefName":
			o.SellerName, err = d.Str()
		case "items":
			o.Lines, err = decodeLines(d)
		case "totalAmount":
			o.ItemsSubtotal, err = decodeDecimal(d)
		case "deliveryFee":
			o.DeliveryFee, err = decodeDecimal(d)
		case "address":
			o.Address, err = d.Str()
		case "phone":
			o.Phone, err = decodeOptionalStr(d)
		case "notes":
			o.Notes, err = decodeOptionalStr(d)
		case "date":
			var s string
			if s, err = d.Str(); err == nil {
				o.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "status":
			var s string
			if s, err = d.Str(); err == nil {
				o.Status, err = ParseCustomerStatus(s)
			}
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ItemID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("price")
		encodeDecimal(e, l.UnitPrice)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("image")
		e.Str(l.ImageRef)
		e.FieldStart("chefId")
		e.Str(l.SellerID)
		e.FieldStart("chefName")
		e.Str(l.SellerName)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func decodeLines(d *jx.Decoder) ([]cart.Line, error) {
	var lines []cart.Line
	err := d.Arr(func(d *jx.Decoder) error {
		var l cart.Line
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				l.ItemID, err = d.Str()
			case "name":
				l.Name, err = d.Str()
			case "price":
				l.UnitPrice, err = decodeDecimal(d)
			case "quantity":
				l.Quantity, err = d.Int()
			case "image":
				l.ImageRef, err = decodeOptionalStr(d)
			case "chefId":
				l.SellerID, err = decodeOptionalStr(d)
			case "chefName":
				l.SellerName, err = decodeOptionalStr(d)
			default:
				err = d.Skip()
			}
			if err != nil {
				return errors.Wrapf(err, "line field %q", key)
			}
			return nil
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}

// decodeOptionalStr treats null and non-string values as empty.
func decodeOptionalStr(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

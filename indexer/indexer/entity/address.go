package entity

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// Partition tags which arena an address lives in.
type Partition uint8

const (
	Loaded Partition = iota
	Empty
)

func (p Partition) String() string {
	switch p {
	case Loaded:
		return "loaded"
	case Empty:
		return "empty"
	}
	return fmt.Sprintf("partition(%d)", uint8(p))
}

// AddressKey is the stable external key of an address: its script class and
// the per-class index the parser assigned to it.
type AddressKey struct {
	Type      txscript.ScriptClass
	TypeIndex uint32
}

func (k AddressKey) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.TypeIndex)
}

func (k AddressKey) Bytes() []byte {
	b := make([]byte, 5)
	b[0] = byte(k.Type)
	binary.BigEndian.PutUint32(b[1:], k.TypeIndex)
	return b
}

func AddressKeyFromBytes(b []byte) (AddressKey, error) {
	if len(b) != 5 {
		return AddressKey{}, fmt.Errorf("address key of %d bytes", len(b))
	}
	return AddressKey{
		Type:      txscript.ScriptClass(b[0]),
		TypeIndex: binary.BigEndian.Uint32(b[1:]),
	}, nil
}

// AddressIndex locates an address inside one of the two partitions.
type AddressIndex struct {
	Partition Partition
	Index     uint64
}

func (i AddressIndex) String() string {
	return fmt.Sprintf("%s/%d", i.Partition, i.Index)
}

func (i AddressIndex) Bytes() []byte {
	b := make([]byte, 9)
	b[0] = byte(i.Partition)
	binary.BigEndian.PutUint64(b[1:], i.Index)
	return b
}

func AddressIndexFromBytes(b []byte) (AddressIndex, error) {
	if len(b) != 9 {
		return AddressIndex{}, fmt.Errorf("address index of %d bytes", len(b))
	}
	return AddressIndex{
		Partition: Partition(b[0]),
		Index:     binary.BigEndian.Uint64(b[1:]),
	}, nil
}

// LoadedAddressData is an address holding at least one unspent output.
type LoadedAddressData struct {
	Sent        btcutil.Amount
	Received    btcutil.Amount
	RealizedCap common.Dollars
	UTXOCount   uint32
}

func (d *LoadedAddressData) Balance() btcutil.Amount {
	return d.Received - d.Sent
}

// IsEmpty reports whether every output the address received is spent.
func (d *LoadedAddressData) IsEmpty() bool {
	return d.UTXOCount == 0
}

// AvgPrice is the value weighted acquisition price of the balance.
func (d *LoadedAddressData) AvgPrice() common.Dollars {
	return d.RealizedCap.Div(d.Balance())
}

// Receive credits count outputs totalling value acquired at price.
func (d *LoadedAddressData) Receive(value btcutil.Amount, count uint32, price common.Dollars) {
	d.Received += value
	d.UTXOCount += count
	d.RealizedCap += price.Mul(value)
}

// Send debits count outputs totalling value and returns the cost basis that
// left the address.
func (d *LoadedAddressData) Send(value btcutil.Amount, count uint32) common.Dollars {
	balance := d.Balance()
	if value > balance || count > d.UTXOCount {
		common.Log.Panicf("address send of %v in %d outputs exceeds balance %v in %d outputs",
			value, count, balance, d.UTXOCount)
	}

	var cost common.Dollars
	if balance > 0 {
		cost = d.RealizedCap * common.Dollars(float64(value)/float64(balance))
	}
	d.Sent += value
	d.UTXOCount -= count
	d.RealizedCap -= cost
	if d.UTXOCount == 0 || d.RealizedCap < 0 {
		d.RealizedCap = 0
	}
	return cost
}

// EmptyAddressData is an address whose outputs are all spent.
type EmptyAddressData struct {
	Transfered btcutil.Amount
}

// ToEmpty keeps the lifetime volume of a fully spent address.
func (d *LoadedAddressData) ToEmpty() EmptyAddressData {
	return EmptyAddressData{Transfered: d.Sent}
}

// Reactivate turns an empty address back into a loaded one with a zero
// balance, ready to receive.
func (e *EmptyAddressData) Reactivate() LoadedAddressData {
	return LoadedAddressData{Sent: e.Transfered, Received: e.Transfered}
}

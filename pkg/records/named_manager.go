package records

import (
	"github.com/huynhanx03/go-objectdb/pkg/storage/allocation"
)

func (m *Manager) namedTable() (map[string]int64, error) {
	if m.named != nil {
		return m.named, nil
	}
	table := map[string]int64{}
	if addr := m.root.NamedRecordIndexAddress; addr > 0 {
		rec, err := m.GetRecord(addr)
		if err != nil {
			return nil, err
		}
		if table, err = decodeNamed(rec.Data, m.order); err != nil {
			return nil, err
		}
	}
	m.named = table
	return table, nil
}

// GetNamedRecordAddress returns the address registered under name, or 0.
func (m *Manager) GetNamedRecordAddress(name string) (int64, error) {
	table, err := m.namedTable()
	if err != nil {
		return 0, err
	}
	return table[name], nil
}

// RegisterNamedRecordAddress records address under name. An address <= 0
// removes the name.
func (m *Manager) RegisterNamedRecordAddress(name string, address int64, reuse bool) error {
	table, err := m.namedTable()
	if err != nil {
		return err
	}
	if current, ok := table[name]; ok && current == address {
		return nil
	}
	if address > 0 {
		table[name] = address
	} else {
		if _, ok := table[name]; !ok {
			return nil
		}
		delete(table, name)
	}

	data, err := encodeNamed(table, m.order)
	if err != nil {
		m.named = nil
		return err
	}

	var rec *Record
	if addr := m.root.NamedRecordIndexAddress; addr > 0 {
		rec, err = m.UpdateRecord(&Record{Header: Header{Address: addr}}, data, reuse, allocation.DoubleSize{})
	} else {
		rec, err = m.AppendRecord(data, reuse, allocation.DoubleSize{})
	}
	if err != nil {
		m.named = nil
		return err
	}

	if rec.Address != m.root.NamedRecordIndexAddress {
		m.root.NamedRecordIndexAddress = rec.Address
		return m.writeRoot()
	}
	return nil
}

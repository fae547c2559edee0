package net

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Save writes the network weights as JSON. Optimizer state is not saved.
func (n *Network) Save(path string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write network")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "write network")
	}
	return nil
}

// Load reads a network written by Save. Training a loaded network starts
// with fresh Adam moments.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read network")
	}
	n := &Network{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, errors.Wrap(err, "decode network")
	}
	if n.Inputs <= 0 || n.Hidden <= 0 ||
		len(n.W1) != n.Inputs*n.Hidden || len(n.B1) != n.Hidden || len(n.W2) != n.Hidden {
		return nil, errors.Errorf("network %s has inconsistent dimensions", path)
	}
	n.init()
	return n, nil
}

package staging

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoVariable is returned when a dataset has no data variable to stage.
var ErrNoVariable = errors.New("could not find variable in NetCDF file")

// GridData is a staged gridded variable.
type GridData struct {
	Data     *Array `json:"data"`
	Shape    []int  `json:"shape"`
	Variable string `json:"variable"`
}

// StageGridSeries opens the NetCDF dataset at path and stages the variable
// best matching hint. Variables with more than two dimensions are reduced to
// their first slice along the leading dimension.
func (s *Stager) StageGridSeries(path, hint string) (*GridData, error) {
	ds, err := OpenDataset(path)
	if err != nil {
		return nil, fmt.Errorf("processing %s data: %w", hint, err)
	}
	defer ds.Close()

	gd, err := s.stageGrid(ds, hint)
	if err != nil {
		return nil, fmt.Errorf("processing %s data: %w", hint, err)
	}
	return gd, nil
}

func (s *Stager) stageGrid(ds *Dataset, hint string) (*GridData, error) {
	var names []string
	for _, v := range ds.DataVars() {
		names = append(names, v.Name)
	}
	name, err := SelectVariable(names, hint, s.overrides[strings.ToLower(hint)])
	if err != nil {
		return nil, err
	}
	v, _ := ds.Var(name)

	var arr *Array
	if len(v.Shape) > 2 {
		arr, err = ds.ReadFirst(v)
	} else {
		arr, err = ds.Read(v)
	}
	if err != nil {
		return nil, err
	}
	return &GridData{Data: arr, Shape: append([]int(nil), arr.Shape...), Variable: name}, nil
}

// SelectVariable picks a variable for hint. An override present in names
// wins; otherwise the first name that contains hint, or is contained in it,
// case-insensitively; otherwise the first name.
func SelectVariable(names []string, hint, override string) (string, error) {
	if len(names) == 0 {
		return "", ErrNoVariable
	}
	if override != "" {
		for _, n := range names {
			if n == override {
				return n, nil
			}
		}
	}
	h := strings.ToLower(hint)
	if h != "" {
		for _, n := range names {
			l := strings.ToLower(n)
			if strings.Contains(l, h) || strings.Contains(h, l) {
				return n, nil
			}
		}
	}
	return names[0], nil
}

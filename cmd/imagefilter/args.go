package main

import (
	"fmt"

	"github.com/dharsanguruparan/imagefilter/internal/model"
)

func parseImageType(s string) (model.ImageType, error) {
	t, err := model.ParseImageType(s)
	if err != nil {
		return 0, err
	}
	if t != model.ImageExcluded && t != model.ImageIncluded {
		return 0, fmt.Errorf("images can only be overridden to %s or %s", model.ImageExcluded, model.ImageIncluded)
	}
	return t, nil
}

func imageQuery(fileID, productID string, types []string) (model.ImageQuery, error) {
	q := model.ImageQuery{FileID: fileID, ProductID: productID}
	for _, name := range types {
		t, err := model.ParseImageType(name)
		if err != nil {
			return q, err
		}
		q.Types = append(q.Types, t)
	}
	return q, nil
}

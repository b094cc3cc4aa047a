package main

import (
	"context"

	"github.com/trezcool/tos/core/tenant"
)

func (cli *commandLine) addAgency(name, slug string) (tenant.Agency, error) {
	na := tenant.NewAgency{Name: name, Slug: slug}
	if err := na.Validate(cli.validate); err != nil {
		return tenant.Agency{}, err
	}
	return cli.tenantSvc.CreateAgency(context.Background(), operator, na)
}

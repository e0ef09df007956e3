package patient

import (
	"github.com/smallbiznis/cabinet/internal/patient/service"
	"go.uber.org/fx"
)

var Module = fx.Module("patient.service",
	fx.Provide(service.NewService),
)

package handler

import (
	"github.com/PedroMMarinho/FEUP-CPD/internal/app/chat"
	"github.com/PedroMMarinho/FEUP-CPD/internal/configs"
)

type AppDeps struct {
	Chat   *chat.Deps
	Config *configs.AppConfig
}

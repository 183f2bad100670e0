package internal

import (
	"net/http"
	"pvz/internal/controllers"
	"pvz/internal/providers"
)

func InitRoutes(scanController *controllers.ScanController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/scan", http.HandlerFunc(scanController.StartScan))
	routers.Get("/scan", http.HandlerFunc(scanController.Status))
	routers.Post("/scan/cancel", http.HandlerFunc(scanController.CancelScan))
	routers.Get("/report", http.HandlerFunc(scanController.GetReport))
	routers.Get("/queue", http.HandlerFunc(scanController.GetQueue))
	routers.Get("/reports", http.HandlerFunc(scanController.GetOwners))
	return routers
}

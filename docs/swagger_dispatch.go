package docs

// @title           Taxi Dispatch API
// @version         1.0
// @description     Orders, driver availability and positions, driver search and live channels for drivers and passengers.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

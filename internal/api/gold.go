package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const goldInvestmentHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Gold Investment - Simplify Money</title>
  <style>
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0;
           background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
           color: #fff; min-height: 100vh; line-height: 1.6; }
    .container { max-width: 960px; margin: 0 auto; padding: 2rem; }
    h1 { color: #ffd700; font-size: 2.5rem; }
    .card { background: rgba(255, 255, 255, 0.1); border-radius: 15px; padding: 1.5rem; margin: 1.5rem 0; }
    .cta { display: inline-block; background: #ffd700; color: #1a1a2e; padding: 0.8rem 1.6rem;
           border-radius: 30px; text-decoration: none; font-weight: bold; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Invest in Digital Gold</h1>
    <p>Start with as little as you like and build a gold position one step at a time.</p>
    <div class="card">
      <h2>Why digital gold?</h2>
      <ul>
        <li>24K purity, stored in insured vaults</li>
        <li>Buy and sell any day at live prices</li>
        <li>No making charges or locker fees</li>
      </ul>
    </div>
    <div class="card">
      <h2>Sovereign Gold Bonds</h2>
      <p>Government-backed bonds that track the price of gold and pay a fixed annual interest.</p>
    </div>
    <a class="cta" href="#">Start investing with Simplify</a>
  </div>
</body>
</html>`

func goldInvestmentPage(c echo.Context) error {
	return c.HTML(http.StatusOK, goldInvestmentHTML)
}

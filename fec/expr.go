/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fec

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"

	"github.com/facebook/linkmgr/caps"
)

// variables available to limit expressions
var supportedVariables = []string{
	"rate",
	"lanes",
	"mant",
	"exp",
}

func isSupportedVar(varName string) bool {
	for _, v := range supportedVariables {
		if v == varName {
			return true
		}
	}
	return false
}

var functions = map[string]govaluate.ExpressionFunction{
	"pow10": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("pow10: wrong number of arguments: want 1, got %d", len(args))
		}
		val := args[0].(float64)
		return math.Pow10(int(val)), nil
	},
	"min": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("min: wrong number of arguments: want 2, got %d", len(args))
		}
		return math.Min(args[0].(float64), args[1].(float64)), nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("max: wrong number of arguments: want 2, got %d", len(args))
		}
		return math.Max(args[0].(float64), args[1].(float64)), nil
	},
}

// LimitExpr is an operator supplied formula for auto limits, e.g. "rate * mant * pow10(exp)"
type LimitExpr struct {
	expr *govaluate.EvaluableExpression
}

// NewLimitExpr parses a limit formula
func NewLimitExpr(s string) (*LimitExpr, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(s, functions)
	if err != nil {
		return nil, err
	}
	for _, v := range expr.Vars() {
		if !isSupportedVar(v) {
			return nil, fmt.Errorf("unsupported variable %q", v)
		}
	}
	return &LimitExpr{expr: expr}, nil
}

// Eval evaluates the formula for tech and a BER target
func (e *LimitExpr) Eval(tech caps.Tech, mant uint32, exp int) (float64, error) {
	lanes := tech.Lanes()
	if lanes == 0 {
		lanes = 1
	}
	res, err := e.expr.Evaluate(map[string]interface{}{
		"rate":  float64(LineRate(tech)),
		"lanes": float64(lanes),
		"mant":  float64(mant),
		"exp":   float64(exp),
	})
	if err != nil {
		return 0, err
	}
	v, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("expression returned %T, not a number", res)
	}
	return v, nil
}

// Calc is Eval clamped to a limit. Evaluation errors fall back to LimitCalc.
func (e *LimitExpr) Calc(tech caps.Tech, mant uint32, exp int) int32 {
	v, err := e.Eval(tech, mant, exp)
	if err != nil || math.IsNaN(v) {
		return LimitCalc(tech, mant, exp)
	}
	if v <= 0 {
		return 0
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

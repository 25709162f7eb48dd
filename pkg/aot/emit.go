package aot

import (
	"github.com/chazu/luaot/pkg/bytecode"
)

// emitBody writes the C statements of the instruction at pc, mirroring the
// corresponding case of luaV_execute. It reports false when the opcode has
// no translation.
func (c *Compiler) emitBody(p *bytecode.Prototype, pc int) bool {
	ins := p.Code[pc]

	switch ins.Opcode() {
	// ========================================================================
	// Loads and upvalues
	// ========================================================================

	case bytecode.OpMove:
		c.writeLine("    setobjs2s(L, ra, RB(i));")

	case bytecode.OpLoadI:
		c.writeLine("    lua_Integer b = GETARG_sBx(i);")
		c.writeLine("    setivalue(s2v(ra), b);")

	case bytecode.OpLoadF:
		c.writeLine("    int b = GETARG_sBx(i);")
		c.writeLine("    setfltvalue(s2v(ra), cast_num(b));")

	case bytecode.OpLoadK:
		c.writeLine("    TValue *rb = k + GETARG_Bx(i);")
		c.writeLine("    setobj2s(L, ra, rb);")

	case bytecode.OpLoadKX:
		c.writeLine("    TValue *rb;")
		c.writeLine("    rb = k + GETARG_Ax(*LUA_AOT_PC);")
		c.writeLine("    setobj2s(L, ra, rb);")
		c.writeLine("    goto LUA_AOT_SKIP1;")

	case bytecode.OpLoadFalse:
		c.writeLine("    setbfvalue(s2v(ra));")

	case bytecode.OpLFalseSkip:
		c.writeLine("    setbfvalue(s2v(ra));")
		c.writeLine("    goto LUA_AOT_SKIP1;  /* skip next instruction */")

	case bytecode.OpLoadTrue:
		c.writeLine("    setbtvalue(s2v(ra));")

	case bytecode.OpLoadNil:
		c.writeLine("    int b = GETARG_B(i);")
		c.writeLine("    do {")
		c.writeLine("      setnilvalue(s2v(ra++));")
		c.writeLine("    } while (b--);")

	case bytecode.OpGetUpval:
		c.writeLine("    int b = GETARG_B(i);")
		c.writeLine("    setobj2s(L, ra, cl->upvals[b]->v);")

	case bytecode.OpSetUpval:
		c.writeLine("    UpVal *uv = cl->upvals[GETARG_B(i)];")
		c.writeLine("    setobj(L, uv->v, s2v(ra));")
		c.writeLine("    luaC_barrier(L, uv, s2v(ra));")

	// ========================================================================
	// Unary operations and upvalue closing
	// ========================================================================

	case bytecode.OpNot:
		c.writeLine("    TValue *rb = vRB(i);")
		c.writeLine("    if (l_isfalse(rb))")
		c.writeLine("      setbtvalue(s2v(ra));")
		c.writeLine("    else")
		c.writeLine("      setbfvalue(s2v(ra));")

	case bytecode.OpClose:
		c.writeLine("    Protect(luaF_close(L, ra, LUA_OK));")

	// ========================================================================
	// Jumps and conditional tests
	// ========================================================================

	case bytecode.OpJmp:
		c.writeLine("    updatetrap(ci);")
		c.writeLine("    goto %s;", labelName(JumpTarget(pc, ins.SJ())))

	case bytecode.OpEq:
		c.writeLine("    int cond;")
		c.writeLine("    TValue *rb = vRB(i);")
		c.writeLine("    Protect(cond = luaV_equalobj(L, s2v(ra), rb));")
		c.emitCondJump()

	case bytecode.OpLt:
		c.emitOrder("<", "luaV_lessthan")

	case bytecode.OpLe:
		c.emitOrder("<=", "luaV_lessequal")

	case bytecode.OpEqK:
		c.writeLine("    TValue *rb = KB(i);")
		c.writeLine("    /* basic types do not use '__eq'; we can use raw equality */")
		c.writeLine("    int cond = luaV_rawequalobj(s2v(ra), rb);")
		c.emitCondJump()

	case bytecode.OpEqI:
		c.writeLine("    int cond;")
		c.writeLine("    int im = GETARG_sB(i);")
		c.writeLine("    if (ttisinteger(s2v(ra)))")
		c.writeLine("      cond = (ivalue(s2v(ra)) == im);")
		c.writeLine("    else if (ttisfloat(s2v(ra)))")
		c.writeLine("      cond = luai_numeq(fltvalue(s2v(ra)), cast_num(im));")
		c.writeLine("    else")
		c.writeLine("      cond = 0;  /* other types cannot be equal to a number */")
		c.emitCondJump()

	case bytecode.OpLtI:
		c.emitOrderI("<", "luai_numlt", 0, "TM_LT")

	case bytecode.OpLeI:
		c.emitOrderI("<=", "luai_numle", 0, "TM_LE")

	case bytecode.OpGtI:
		c.emitOrderI(">", "luai_numgt", 1, "TM_LT")

	case bytecode.OpGeI:
		c.emitOrderI(">=", "luai_numge", 1, "TM_LE")

	case bytecode.OpTest:
		c.writeLine("    int cond = !l_isfalse(s2v(ra));")
		c.emitCondJump()

	case bytecode.OpTestSet:
		c.writeLine("    TValue *rb = vRB(i);")
		c.writeLine("    if (l_isfalse(rb) == GETARG_k(i))")
		c.writeLine("      goto LUA_AOT_SKIP1;")
		c.writeLine("    else {")
		c.writeLine("      setobj2s(L, ra, rb);")
		c.writeLine("      updatetrap(ci);")
		c.writeLine("      goto LUA_AOT_NEXT_JUMP;")
		c.writeLine("    }")

	// ========================================================================
	// Returns
	// ========================================================================

	case bytecode.OpReturn:
		c.writeLine("    int n = GETARG_B(i) - 1;  /* number of results */")
		c.writeLine("    int nparams1 = GETARG_C(i);")
		c.writeLine("    if (n < 0)  /* not fixed? */")
		c.writeLine("      n = cast_int(L->top - ra);  /* get what is available */")
		c.writeLine("    savepc(ci);")
		c.writeLine("    if (TESTARG_k(i)) {  /* may there be open upvalues? */")
		c.writeLine("      if (L->top < ci->top)")
		c.writeLine("        L->top = ci->top;")
		c.writeLine("      luaF_close(L, base, LUA_OK);")
		c.writeLine("      updatetrap(ci);")
		c.writeLine("      updatestack(ci);")
		c.writeLine("    }")
		c.writeLine("    if (nparams1)  /* vararg function? */")
		c.writeLine("      ci->func -= ci->u.l.nextraargs + nparams1;")
		c.writeLine("    L->top = ra + n;  /* set call for 'luaD_poscall' */")
		c.writeLine("    luaD_poscall(L, ci, n);")
		c.writeLine("    return;")

	case bytecode.OpReturn0:
		c.writeLine("    if (L->hookmask) {")
		c.writeLine("      L->top = ra;")
		c.writeLine("      halfProtectNT(luaD_poscall(L, ci, 0));  /* no hurry... */")
		c.writeLine("    }")
		c.writeLine("    else {  /* do the 'poscall' here */")
		c.writeLine("      int nres = ci->nresults;")
		c.writeLine("      L->ci = ci->previous;  /* back to caller */")
		c.writeLine("      L->top = base - 1;")
		c.writeLine("      while (nres-- > 0)")
		c.writeLine("        setnilvalue(s2v(L->top++));  /* all results are nil */")
		c.writeLine("    }")
		c.writeLine("    return;")

	case bytecode.OpReturn1:
		c.writeLine("    if (L->hookmask) {")
		c.writeLine("      L->top = ra + 1;")
		c.writeLine("      halfProtectNT(luaD_poscall(L, ci, 1));  /* no hurry... */")
		c.writeLine("    }")
		c.writeLine("    else {  /* do the 'poscall' here */")
		c.writeLine("      int nres = ci->nresults;")
		c.writeLine("      L->ci = ci->previous;  /* back to caller */")
		c.writeLine("      if (nres == 0)")
		c.writeLine("        L->top = base - 1;  /* asked for no results */")
		c.writeLine("      else {")
		c.writeLine("        setobjs2s(L, base - 1, ra);  /* at least this result */")
		c.writeLine("        L->top = base;")
		c.writeLine("        while (--nres > 0)  /* complete missing results */")
		c.writeLine("          setnilvalue(s2v(L->top++));")
		c.writeLine("      }")
		c.writeLine("    }")
		c.writeLine("    return;")

	// ========================================================================
	// Numeric for loop
	// ========================================================================

	case bytecode.OpForLoop:
		back := labelName(LoopBackTarget(pc, ins.Bx()))
		c.writeLine("    if (ttisinteger(s2v(ra + 2))) {  /* integer loop? */")
		c.writeLine("      lua_Unsigned count = l_castS2U(ivalue(s2v(ra + 1)));")
		c.writeLine("      if (count > 0) {  /* still more iterations? */")
		c.writeLine("        lua_Integer step = ivalue(s2v(ra + 2));")
		c.writeLine("        lua_Integer idx = ivalue(s2v(ra));  /* internal index */")
		c.writeLine("        chgivalue(s2v(ra + 1), count - 1);  /* update counter */")
		c.writeLine("        idx = intop(+, idx, step);  /* add step to index */")
		c.writeLine("        chgivalue(s2v(ra), idx);  /* update internal index */")
		c.writeLine("        setivalue(s2v(ra + 3), idx);  /* and control variable */")
		c.writeLine("        goto %s; /* jump back */", back)
		c.writeLine("      }")
		c.writeLine("    }")
		c.writeLine("    else {  /* floating loop */")
		c.writeLine("      lua_Number step = fltvalue(s2v(ra + 2));")
		c.writeLine("      lua_Number limit = fltvalue(s2v(ra + 1));")
		c.writeLine("      lua_Number idx = fltvalue(s2v(ra));")
		c.writeLine("      idx = luai_numadd(L, idx, step);  /* increment index */")
		c.writeLine("      if (luai_numlt(0, step) ? luai_numle(idx, limit)")
		c.writeLine("                              : luai_numle(limit, idx)) {")
		c.writeLine("        chgfltvalue(s2v(ra), idx);  /* update internal index */")
		c.writeLine("        setfltvalue(s2v(ra + 3), idx);  /* and control variable */")
		c.writeLine("        goto %s; /* jump back */", back)
		c.writeLine("      }")
		c.writeLine("    }")
		c.writeLine("    updatetrap(ci);  /* allows a signal to break the loop */")

	case bytecode.OpForPrep:
		skip := labelName(LoopSkipTarget(pc, ins.Bx()))
		c.writeLine("    TValue *pinit = s2v(ra);")
		c.writeLine("    TValue *plimit = s2v(ra + 1);")
		c.writeLine("    TValue *pstep = s2v(ra + 2);")
		c.writeLine("    savestate(L, ci);  /* in case of errors */")
		c.writeLine("    if (ttisinteger(pinit) && ttisinteger(pstep)) { /* integer loop? */")
		c.writeLine("      lua_Integer init = ivalue(pinit);")
		c.writeLine("      lua_Integer step = ivalue(pstep);")
		c.writeLine("      lua_Integer limit;")
		c.writeLine("      if (step == 0)")
		c.writeLine("        luaG_runerror(L, \"'for' step is zero\");")
		c.writeLine("      setivalue(s2v(ra + 3), init);  /* control variable */")
		c.writeLine("      if (forlimit(L, init, plimit, &limit, step))")
		c.writeLine("        goto %s; /* skip the loop */", skip)
		c.writeLine("      else {  /* prepare loop counter */")
		c.writeLine("        lua_Unsigned count;")
		c.writeLine("        if (step > 0) {  /* ascending loop? */")
		c.writeLine("          count = l_castS2U(limit) - l_castS2U(init);")
		c.writeLine("          if (step != 1)  /* avoid division in the too common case */")
		c.writeLine("            count /= l_castS2U(step);")
		c.writeLine("        }")
		c.writeLine("        else {  /* step < 0; descending loop */")
		c.writeLine("          count = l_castS2U(init) - l_castS2U(limit);")
		c.writeLine("          /* 'step+1' avoids negating 'mininteger' */")
		c.writeLine("          count /= l_castS2U(-(step + 1)) + 1u;")
		c.writeLine("        }")
		c.writeLine("        /* store the counter in place of the limit (which won't be")
		c.writeLine("           needed anymore */")
		c.writeLine("        setivalue(plimit, l_castU2S(count));")
		c.writeLine("      }")
		c.writeLine("    }")
		c.writeLine("    else {  /* try making all values floats */")
		c.writeLine("      lua_Number init; lua_Number limit; lua_Number step;")
		c.writeLine("      if (unlikely(!tonumber(plimit, &limit)))")
		c.writeLine("        luaG_forerror(L, plimit, \"limit\");")
		c.writeLine("      if (unlikely(!tonumber(pstep, &step)))")
		c.writeLine("        luaG_forerror(L, pstep, \"step\");")
		c.writeLine("      if (unlikely(!tonumber(pinit, &init)))")
		c.writeLine("        luaG_forerror(L, pinit, \"initial value\");")
		c.writeLine("      if (step == 0)")
		c.writeLine("        luaG_runerror(L, \"'for' step is zero\");")
		c.writeLine("      if (luai_numlt(0, step) ? luai_numlt(limit, init)")
		c.writeLine("                               : luai_numlt(init, limit))")
		c.writeLine("        goto %s; /* skip the loop */", skip)
		c.writeLine("      else {")
		c.writeLine("        /* make sure internal values are all float */")
		c.writeLine("        setfltvalue(plimit, limit);")
		c.writeLine("        setfltvalue(pstep, step);")
		c.writeLine("        setfltvalue(s2v(ra), init);  /* internal index */")
		c.writeLine("        setfltvalue(s2v(ra + 3), init);  /* control variable */")
		c.writeLine("      }")
		c.writeLine("    }")

	// ========================================================================
	// Generic for loop
	// ========================================================================

	case bytecode.OpTForPrep:
		c.writeLine("    /* create to-be-closed upvalue (if needed) */")
		c.writeLine("    halfProtect(luaF_newtbcupval(L, ra + 3));")
		c.writeLine("    goto %s;", labelName(ForwardTarget(pc, ins.Bx())))

	case bytecode.OpTForCall:
		c.writeLine("    /* 'ra' has the iterator function, 'ra + 1' has the state,")
		c.writeLine("       'ra + 2' has the control variable, and 'ra + 3' has the")
		c.writeLine("       to-be-closed variable. The call will use the stack after")
		c.writeLine("       these values (starting at 'ra + 4')")
		c.writeLine("    */")
		c.writeLine("    /* push function, state, and control variable */")
		c.writeLine("    memcpy(ra + 4, ra, 3 * sizeof(*ra));")
		c.writeLine("    L->top = ra + 4 + 3;")
		c.writeLine("    ProtectNT(luaD_call(L, ra + 4, GETARG_C(i)));  /* do the call */")
		c.writeLine("    updatestack(ci);  /* stack may have changed */")
		c.writeLine("    /* next instruction is TFORLOOP */")

	case bytecode.OpTForLoop:
		c.writeLine("    if (!ttisnil(s2v(ra + 4))) {  /* continue loop? */")
		c.writeLine("      setobjs2s(L, ra + 2, ra + 4);  /* save control variable */")
		c.writeLine("      goto %s; /* jump back */", labelName(LoopBackTarget(pc, ins.Bx())))
		c.writeLine("    }")

	// ========================================================================
	// Closures and varargs
	// ========================================================================

	case bytecode.OpClosure:
		c.writeLine("    Proto *p = cl->p->p[GETARG_Bx(i)];")
		c.writeLine("    halfProtect(pushclosure(L, p, cl->upvals, base, ra));")
		c.writeLine("    checkGC(L, ra + 1);")

	case bytecode.OpVararg:
		c.writeLine("    int n = GETARG_C(i) - 1;  /* required results */")
		c.writeLine("    Protect(luaT_getvarargs(L, ci, ra, n));")

	case bytecode.OpVarargPrep:
		c.writeLine("    luaT_adjustvarargs(L, GETARG_A(i), ci, cl->p);")
		c.writeLine("    updatetrap(ci);")
		c.writeLine("    if (trap) {")
		c.writeLine("      luaD_hookcall(L, ci);")
		c.writeLine("      L->oldpc = LUA_AOT_PC + 1;  /* next opcode will be seen as a \"new\" line */")
		c.writeLine("    }")

	case bytecode.OpExtraArg:
		c.writeLine("    lua_assert(0);")

	default:
		return false
	}
	return true
}

// emitCondJump finishes a test instruction: either skip the JMP that
// follows it or take that JMP's branch directly.
func (c *Compiler) emitCondJump() {
	c.writeLine("    if (cond != GETARG_k(i))")
	c.writeLine("      goto LUA_AOT_SKIP1;")
	c.writeLine("    else {")
	c.writeLine("      updatetrap(ci);")
	c.writeLine("      goto LUA_AOT_NEXT_JUMP;")
	c.writeLine("    }")
}

// emitOrder writes LT and LE: integer fast path, then the generic
// comparison which handles floats, strings and metamethods.
func (c *Compiler) emitOrder(op, generic string) {
	c.writeLine("    int cond;")
	c.writeLine("    TValue *rb = vRB(i);")
	c.writeLine("    if (ttisinteger(s2v(ra)) && ttisinteger(rb))")
	c.writeLine("      cond = (ivalue(s2v(ra)) %s ivalue(rb));", op)
	c.writeLine("    else")
	c.writeLine("      Protect(cond = %s(L, s2v(ra), rb));", generic)
	c.emitCondJump()
}

// emitOrderI writes the comparisons against an immediate operand.
func (c *Compiler) emitOrderI(op, numOp string, inv int, tm string) {
	c.writeLine("    int cond;")
	c.writeLine("    int im = GETARG_sB(i);")
	c.writeLine("    if (ttisinteger(s2v(ra)))")
	c.writeLine("      cond = (ivalue(s2v(ra)) %s im);", op)
	c.writeLine("    else if (ttisfloat(s2v(ra))) {")
	c.writeLine("      lua_Number fa = fltvalue(s2v(ra));")
	c.writeLine("      lua_Number fim = cast_num(im);")
	c.writeLine("      cond = %s(fa, fim);", numOp)
	c.writeLine("    }")
	c.writeLine("    else {")
	c.writeLine("      int isf = GETARG_C(i);")
	c.writeLine("      Protect(cond = luaT_callorderiTM(L, s2v(ra), im, %d, isf, %s));", inv, tm)
	c.writeLine("    }")
	c.emitCondJump()
}

// emitUnsupported writes the body of an instruction without a translation
// under the trap and fallback policies.
func (c *Compiler) emitUnsupported(op bytecode.Opcode) {
	switch c.opts.Unsupported {
	case PolicyFallback:
		c.writeLine("    luaot_fallback(L, ci, LUA_AOT_PC - 1);")
		c.writeLine("    updatetrap(ci);")
		c.writeLine("    updatebase(ci);")
	default:
		c.writeLine("    luaot_unsupported(L, %q);", op.String())
	}
}
